// Package main publishes a terms and conditions version, for seeding a fresh
// database or rolling out new terms.
//
//	seed -version 2026-01 -file terms.md -activate
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/utafrali/blossom-account/internal/app"
	"github.com/utafrali/blossom-account/internal/config"
	"github.com/utafrali/blossom-account/internal/service"
	"github.com/utafrali/blossom-account/pkg/logger"
)

func main() {
	version := flag.String("version", "", "terms version string, e.g. 2026-01")
	file := flag.String("file", "", "path to the terms text")
	content := flag.String("content", "", "terms text, when -file is not given")
	activate := flag.Bool("activate", true, "make this the active version")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.New("account-seed", cfg.LogLevel)

	text := *content
	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			log.Error("failed to read terms file", slog.String("path", *file), slog.String("error", err.Error()))
			os.Exit(1)
		}
		text = string(data)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	v, err := app.PublishTerms(ctx, cfg, log, service.PublishInput{
		Version:  *version,
		Content:  text,
		Activate: *activate,
	})
	if err != nil {
		log.Error("failed to publish terms", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("seed complete",
		slog.Int64("terms_version_id", v.ID),
		slog.String("terms_version", v.VersionString),
		slog.Bool("active", v.IsActive),
	)
}
