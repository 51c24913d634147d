package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/refgate/refgate/internal/gateway"
	"github.com/refgate/refgate/internal/observability"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "refgated: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := buildConfig(opts)
	if err != nil {
		return err
	}

	logger := observability.InitLogger("refgated", cfg.LogLevel)
	observability.RegisterMetrics()

	srv, err := gateway.New(cfg, nil, logger)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	if _, err := srv.WriteDiscovery(); err != nil {
		_ = srv.Shutdown()
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigs:
		logger.Info().Str("signal", sig.String()).Msg("stopping on signal")
	case <-srv.Done():
	}
	return srv.Shutdown()
}
