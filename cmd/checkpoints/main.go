package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/checkpoints"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/config"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/logging"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	URL     string        `long:"url" description:"checkpoints source URL"`
	File    string        `long:"file" description:"destination file"`
	Timeout time.Duration `long:"timeout" default:"1m" description:"download timeout"`
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

	if opts.URL == "" {
		opts.URL = config.DefaultCheckpointsURL
	}
	if opts.File == "" {
		opts.File = config.DefaultCheckpointsFile
	}

	logger, sync, err := logging.NewZapLogger(logging.DefaultZapConfig())
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer sync()

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	if err := checkpoints.Refresh(ctx, opts.URL, opts.File, http.DefaultClient, logger); err != nil {
		logger.Errorf("Error: %v", err)
		cancel()
		sync()
		os.Exit(1)
	}
}
