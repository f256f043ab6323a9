package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/config"
)

func main() {
	var (
		companyID = flag.String("company", "", "Company (tenant) id the file is registered for")
		file      = flag.String("file", "", "Path of the local file to upload")
		filename  = flag.String("filename", "", "Display filename (defaults to the base name of -file)")
		fileType  = flag.String("type", "", "Declared file type")
		tags      = flag.String("tags", "", "Free-form tags")
	)
	flag.Usage = func() {
		out := flag.CommandLine.Output()
		fmt.Fprintf(out, "Usage of %s:\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintf(out, "\n%s\n", config.EnvUsage())
	}
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if *companyID == "" || *file == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *filename == "" {
		*filename = filepath.Base(*file)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.Load(config.WithEnv(), config.WithLogger(logger))
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	svc, cleanup, err := cfg.BuildService(ctx)
	if err != nil {
		slog.Error("Failed to build service", "err", err)
		os.Exit(1)
	}
	defer cleanup()

	result, err := svc.UploadFile(ctx, *companyID, simplemedia.UploadFileParams{
		Filename: *filename,
		FileType: *fileType,
		Tags:     *tags,
	}, *file)
	if err != nil {
		slog.Error("Upload failed", "file", *file, "retryable", simplemedia.IsRetryable(err), "err", err)
		cleanup()
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		slog.Error("Failed to write result", "err", err)
		cleanup()
		os.Exit(1)
	}
}
