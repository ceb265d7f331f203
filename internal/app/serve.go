package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/relay/internal/cli"
	"horse.fit/relay/internal/httpapi"
	"horse.fit/relay/internal/notify"
	"horse.fit/relay/internal/scheduler"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	host := fs.String("host", "0.0.0.0", "Host interface to bind")
	port := fs.Int("port", 8092, "HTTP port")
	readTimeout := fs.Duration("read-timeout", 10*time.Second, "HTTP read timeout")
	writeTimeout := fs.Duration("write-timeout", 30*time.Second, "HTTP write timeout")
	shutdownTimeout := fs.Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *port <= 0 || *port > 65535 {
		fmt.Fprintln(os.Stderr, "--port must be between 1 and 65535")
		return 2
	}

	cfg, logger, pool, err := bootstrap(envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		return 1
	}
	defer pool.Close()

	comps, err := buildComponents(cfg, pool, logger)
	if err != nil {
		logger.Error().Err(err).Msg("component wiring failed")
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()

	sched := scheduler.New(
		comps.ingestor,
		comps.publisher,
		pool,
		comps.cache,
		comps.notifier,
		scheduler.Options{
			TickInterval:      cfg.FetchInterval,
			RemainderInterval: cfg.RemainderInterval,
			HousekeepInterval: cfg.HousekeepInterval,
			HeartbeatInterval: cfg.HeartbeatInterval,
			SeenRetention:     cfg.SeenRetention,
			MediaRetention:    cfg.MediaRetention,
		},
		logger,
	)

	srv := httpapi.NewServer(pool, sched, logger, httpapi.Options{
		Host:            *host,
		Port:            *port,
		APIToken:        cfg.APIToken,
		AllowedOrigins:  cfg.CORSAllowedOriginsList(),
		ReadTimeout:     *readTimeout,
		WriteTimeout:    *writeTimeout,
		ShutdownTimeout: *shutdownTimeout,
	})

	errCh := make(chan error, 3)
	go func() { errCh <- sched.Run(ctx) }()
	go func() { errCh <- srv.Start(ctx) }()
	if comps.telegram != nil {
		poller := notify.NewPoller(comps.telegram, pool, logger)
		go func() { errCh <- poller.Run(ctx) }()
	}

	err = <-errCh
	cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("service failed")
		fmt.Fprintf(os.Stderr, "Service failed: %v\n", err)
		return 1
	}

	return 0
}
