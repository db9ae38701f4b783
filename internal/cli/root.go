// Package cli implements the vault command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/emberwell/vault/internal/config"
	"github.com/emberwell/vault/internal/index"
	"github.com/emberwell/vault/internal/query"
	"github.com/emberwell/vault/internal/scan"
	"github.com/emberwell/vault/internal/store"
)

var (
	flagConfig string
	flagRoot   string
)

var rootCmd = &cobra.Command{
	Use:   "vault",
	Short: "Append-only chronicle of experiential records",
	Long:  "Vault stores JSONL experiential records organized by category and domain, with derived indexes for fast recall. Single Go binary.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config file (default $VAULT_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&flagRoot, "root", "", "Vault root directory (default $VAULT_ROOT or ~/.vault)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(appendCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(ancestorsCmd)
	rootCmd.AddCommand(rebuildCmd)
	rootCmd.AddCommand(snapshotCmd)
}

// loadConfig resolves the config file and vault root for CLI commands.
// Precedence for the root: --root flag, VAULT_ROOT env, config file, ~/.vault.
func loadConfig() (config.Config, error) {
	path := flagConfig
	if path == "" {
		path = os.Getenv("VAULT_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	if flagRoot != "" {
		cfg.Vault.Root = flagRoot
	} else if env := os.Getenv("VAULT_ROOT"); env != "" {
		cfg.Vault.Root = env
	}
	if cfg.Vault.Root == "" {
		root, err := config.DefaultRoot()
		if err != nil {
			return cfg, fmt.Errorf("resolve vault root: %w", err)
		}
		cfg.Vault.Root = root
	}
	return cfg, nil
}

// buildEngine wires the store, scanner, builder, and cache for one command
// invocation. The append callback flips the cache stale so a follow-up query
// in the same process never reads around a fresh write.
func buildEngine(cfg *config.Config) (*store.Store, *query.Engine) {
	st := store.New(cfg)
	sc := scan.New(cfg.ChronicleDir(), cfg.Vault.Categories)
	builder := index.NewBuilder(sc, cfg.CacheDir())
	cache := index.NewCache()
	st.OnAppend(cache.MarkStale)
	return st, query.New(sc, builder, cache)
}
