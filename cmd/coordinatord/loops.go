package main

import (
	"context"
	"time"

	"github.com/tos-network/custody/internal/config"
	"github.com/tos-network/custody/internal/database"
	"github.com/tos-network/custody/internal/xlog"
)

// substrateScanLoop logs a debug tick every 2 seconds until ctx is
// cancelled. It does not poll the Serai chain, reads and writes nothing
// in db, and changes no tributary or validatorset state; the module
// contains no substrate RPC client.
func substrateScanLoop(ctx context.Context, cfg *config.Config, db database.KeyValueStore) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	log := xlog.Root()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			log.Debug("substrate-scan: tick", "network", cfg.Network.String())
		}
	}
}

// heartbeatLoop periodically logs a liveness line, giving an operator
// watching stderr a cheap signal the process hasn't wedged even when no
// other task has anything to report.
func heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	log := xlog.Root()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			log.Info("heartbeat")
		}
	}
}
