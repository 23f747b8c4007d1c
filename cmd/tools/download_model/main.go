package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/nupi-ai/whisper-runtime/internal/logging"
	"github.com/nupi-ai/whisper-runtime/internal/models"
)

func main() {
	var (
		variant      = flag.String("variant", "base", "model variant defined in the manifest")
		output       = flag.String("dir", "testdata", "base directory where models/<file> will be stored")
		manifestPath = flag.String("manifest", "", "YAML manifest to use instead of the embedded one")
		compress     = flag.Bool("compress", false, "also write a zstd-compressed copy next to the model")
		list         = flag.Bool("list", false, "list variants and exit")
	)
	flag.Parse()

	if strings.TrimSpace(*output) == "" {
		fmt.Fprintln(os.Stderr, "download_model: --dir must not be empty")
		os.Exit(2)
	}

	logger, _ := logging.New(logging.Options{Level: "info"})

	manifest, err := loadManifest(*manifestPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "download_model: load manifest: %v\n", err)
		os.Exit(1)
	}
	if *list {
		for _, name := range manifest.Names() {
			v := manifest.Variants[name]
			fmt.Printf("%-16s %s\n", name, v.DisplayName)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	manager, err := models.NewManager(filepath.Clean(*output), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "download_model: init manager: %v\n", err)
		os.Exit(1)
	}

	path, err := manager.EnsureVariant(ctx, *variant, models.EnsureOptions{
		Manifest: manifest,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "download_model: ensure variant %q: %v\n", *variant, err)
		os.Exit(1)
	}
	fmt.Printf("Model %q ready at %s\n", *variant, path)

	if *compress {
		dst := path + ".zst"
		if err := models.CompressModel(path, dst); err != nil {
			fmt.Fprintf(os.Stderr, "download_model: compress: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Compressed copy written to %s\n", dst)
	}
}

func loadManifest(path string) (models.Manifest, error) {
	if path == "" {
		return models.DefaultManifest()
	}
	fh, err := os.Open(path)
	if err != nil {
		return models.Manifest{}, err
	}
	defer fh.Close()
	return models.LoadManifest(fh)
}
