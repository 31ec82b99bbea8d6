package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/config"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/logging"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/service"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Config      string `long:"config" short:"c" description:"path to the YAML configuration file"`
	LogLevel    string `long:"log-level" description:"override the configured log level (debug, info, warn, error)"`
	RunDuration int    `long:"run-duration" description:"stop after this many seconds (0 runs until signalled)"`
	Validate    bool   `long:"validate" description:"validate the configuration and exit"`
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	var cfg *config.Config
	if opts.Config != "" {
		cfg, err = service.ValidateConfigFile(opts.Config)
	} else {
		cfg, err = config.Default()
		if err == nil {
			err = config.ValidateConfig(cfg)
		}
	}
	if err != nil {
		fmt.Printf("Configuration is invalid: %v\n", err)
		os.Exit(1)
	}

	if opts.Validate {
		fmt.Println("Configuration is valid")
		return
	}

	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}

	logger, sync, err := logging.NewZapLogger(cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer sync()

	ctx := context.Background()
	if opts.RunDuration > 0 {
		duration := time.Duration(opts.RunDuration) * time.Second
		logger.Infof("Using RUN DURATION of %v", duration)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	if err := service.Run(ctx, cfg, logging.WithPrefix("module: ha , ", logger)); err != nil {
		logger.Errorf("Service exited with error: %v", err)
		sync()
		os.Exit(1)
	}
}
