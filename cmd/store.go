package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cwbudde/beamlayout/internal/store"
)

// storeFlags selects the checkpoint backend: the filesystem under
// dataDir, or Redis when redisAddr is set. Traces always live in dataDir.
type storeFlags struct {
	dataDir     string
	redisAddr   string
	redisPrefix string
	redisDB     int
}

func (f *storeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.dataDir, "data-dir", "./data", "Base directory for checkpoints and traces")
	cmd.Flags().StringVar(&f.redisAddr, "redis-addr", "", "Store checkpoints in Redis at this address instead of data-dir")
	cmd.Flags().StringVar(&f.redisPrefix, "redis-prefix", store.DefaultRedisPrefix, "Redis key prefix")
	cmd.Flags().IntVar(&f.redisDB, "redis-db", 0, "Redis database number")
}

// open returns the selected store and a function releasing it.
func (f *storeFlags) open(ctx context.Context) (store.Store, func(), error) {
	if f.redisAddr == "" {
		fs, err := store.NewFSStore(f.dataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create checkpoint store: %w", err)
		}
		return fs, func() {}, nil
	}

	rs, err := store.NewRedisStore(ctx, store.RedisConfig{
		Addr:   f.redisAddr,
		DB:     f.redisDB,
		Prefix: f.redisPrefix,
	})
	if err != nil {
		return nil, nil, err
	}
	slog.Debug("Using Redis checkpoint store", "addr", f.redisAddr, "prefix", f.redisPrefix)
	return rs, func() {
		if err := rs.Close(); err != nil {
			slog.Warn("Failed to close Redis store", "error", err)
		}
	}, nil
}
