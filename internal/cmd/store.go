package cmd

import (
	"fmt"

	"github.com/Iron-Ham/wrangler/internal/config"
	"github.com/Iron-Ham/wrangler/internal/logging"
	"github.com/Iron-Ham/wrangler/internal/store"
)

// newStore opens the persistence store at the configured data directory.
func newStore(cfg *config.Config, logger *logging.Logger) (*store.Store, error) {
	st, err := store.New(cfg.DataDir(), logger.WithComponent("store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", cfg.DataDir(), err)
	}
	return st, nil
}
