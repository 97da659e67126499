// Command enrich-cleardb deletes the enrichd data directory.
//
// It reads DATA_DIR (or LMDB_PATH) the same way enrichd does. Stop every
// enrichd process using the directory first.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/xraph/enrich/config"
)

func main() {
	envFile := flag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "enrich-cleardb: load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "enrich-cleardb:", err)
		os.Exit(1)
	}

	removed, err := removeDataDir(cfg.DataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "enrich-cleardb:", err)
		os.Exit(1)
	}
	if removed {
		fmt.Printf("Cleared DB at %s\n", cfg.DataDir)
	} else {
		fmt.Printf("No DB at %s (nothing to clear)\n", cfg.DataDir)
	}
}

// removeDataDir removes dir and reports whether it existed.
func removeDataDir(dir string) (bool, error) {
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, fmt.Errorf("remove %s: %w", dir, err)
	}
	return true, nil
}
