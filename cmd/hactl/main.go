package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/control"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/logging"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Host          string        `long:"host" default:"127.0.0.1" description:"control server host"`
	Port          int           `long:"port" description:"control server port"`
	Timeout       time.Duration `long:"timeout" default:"5s" description:"dial timeout"`
	RetryAttempts int           `long:"retry" default:"1" description:"number of health probes before giving up"`
	RetryInterval time.Duration `long:"retry-interval" default:"1s" description:"delay between health probes"`
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

	if opts.Port == 0 {
		fmt.Println("Port is required")
		os.Exit(1)
	}

	logger, sync, err := logging.NewZapLogger(logging.DefaultZapConfig())
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer sync()

	ctx := context.Background()
	address := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))

	gateway, closeConn, err := control.Dial(ctx, address, opts.Timeout, logging.WithPrefix("module: hactl , ", logger))
	if err != nil {
		logger.Errorf("Failed to connect to %s: %v", address, err)
		os.Exit(2)
	}
	defer closeConn()

	attempts := opts.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		serving, err := gateway.Serving(ctx)
		if err == nil && serving {
			logger.Infof("Daemon is SERVING")
			return
		}
		if err != nil {
			logger.Warnf("Health probe %d/%d failed: %v", attempt, attempts, err)
		} else {
			logger.Warnf("Health probe %d/%d: daemon is NOT_SERVING", attempt, attempts)
		}
		if attempt < attempts {
			time.Sleep(opts.RetryInterval)
		}
	}
	sync()
	os.Exit(1)
}
