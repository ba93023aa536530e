package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/voicelog/voicelog/internal/recognition"
)

func main() {
	var (
		locale = flag.String("locale", "en-US", "recognition locale defined in internal/recognition/manifest.json")
		output = flag.String("dir", "data", "base directory where models/<file> will be stored")
	)
	flag.Parse()

	if strings.TrimSpace(*output) == "" {
		fmt.Fprintln(os.Stderr, "download_model: --dir must not be empty")
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	tag, err := language.Parse(strings.TrimSpace(*locale))
	if err != nil {
		fmt.Fprintf(os.Stderr, "download_model: parse locale %q: %v\n", *locale, err)
		os.Exit(2)
	}

	baseDir := filepath.Clean(*output)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	manifest, err := recognition.DefaultManifest()
	if err != nil {
		fmt.Fprintf(os.Stderr, "download_model: load manifest: %v\n", err)
		os.Exit(1)
	}

	manager, err := recognition.NewManager(baseDir, manifest, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "download_model: init manager: %v\n", err)
		os.Exit(1)
	}

	path, err := manager.EnsureLocale(ctx, tag, func(p float64) {
		fmt.Printf("\rdownloading... %3.0f%%", p*100)
	})
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "download_model: ensure locale %q: %v\n", tag, err)
		os.Exit(1)
	}

	fmt.Printf("Model for %q ready at %s\n", tag, path)
}
