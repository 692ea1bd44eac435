package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/oddnoc/silverstripe-fluent/internal/config"
	"github.com/oddnoc/silverstripe-fluent/internal/otel"
	migrate "github.com/oddnoc/silverstripe-fluent/internal/tools/migrate"
)

func main() {
	ctx := context.Background()

	cfg, err := migrate.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("Error: %v", err)
	}

	shutdown, err := otel.Setup(ctx, "fluent-migrate")
	if err != nil {
		config.Exitf("Error: otel setup: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	if err := migrate.Run(ctx, cfg, os.Stdout); err != nil {
		config.Exitf("Error: %v", err)
	}
}
