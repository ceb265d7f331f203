package app

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"horse.fit/relay/internal/cli"
)

func runPublish(args []string) int {
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
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

	published, err := comps.publisher.PublishNext(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("publish failed")
		fmt.Fprintf(os.Stderr, "Publish failed: %v\n", err)
		return 1
	}

	if published {
		fmt.Println("Published one item.")
	} else {
		fmt.Println("Nothing published: gate closed or queue empty.")
	}
	return 0
}
