// Package main imports certificate PDFs into the catalog.
//
// It expects one subdirectory per category under CERT_SOURCE_DIR
// (e.g. 5-year/, 10-year/) and derives each file's certificate number
// from the first four-digit group in its name.
package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"certflow/internal/core/category"
	"certflow/internal/core/certnum"
	"certflow/internal/domain/catalog"
	"certflow/internal/infrastructure/storage/postgres"
	"certflow/pkg/logger"
)

var numberPattern = regexp.MustCompile(`\d{4}`)

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	sourceDir := mustEnv("CERT_SOURCE_DIR")

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(mustEnv("DATABASE_URL")))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	repo := postgres.NewCertFileRepository(postgres.NewTxManager(pool))

	total := 0
	for _, cat := range category.All() {
		catDir := filepath.Join(sourceDir, string(cat))
		if _, err := os.Stat(catDir); os.IsNotExist(err) {
			log.Warnw("category directory missing, skipping", "dir", catDir)
			continue
		}

		count, err := importCategory(ctx, repo, cat, catDir)
		if err != nil {
			log.Fatalw("import failed", "category", cat, "error", err)
		}
		log.Infow("category imported", "category", cat, "files", count)
		total += count
	}

	log.Infow("seed complete", "files", total)
}

func importCategory(ctx context.Context, repo catalog.Repository, cat category.Category, dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		name := d.Name()
		match := numberPattern.FindString(name)
		if match == "" {
			logger.Warn(ctx, "no certificate number in file name, skipping", "file", name)
			return nil
		}

		number, err := certnum.Parse(match)
		if err != nil {
			return fmt.Errorf("file %s: %w", name, err)
		}

		f := catalog.File{
			Category: cat,
			Number:   number,
			Title:    strings.TrimSuffix(name, filepath.Ext(name)),
			FilePath: path,
		}
		if err := repo.Register(ctx, f); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}
