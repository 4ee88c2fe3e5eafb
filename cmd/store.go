package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/smartacus/probe-cli/internal/store"
)

// initStore opens the Postgres store from configuration.
func initStore(ctx context.Context) (*store.PostgresStore, error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, eris.New("store: database_url is required (SMARTACUS_STORE_DATABASE_URL)")
	}

	connString := cfg.Store.DatabaseURL
	if cfg.Store.SSLMode != "" && !strings.Contains(connString, "sslmode=") {
		sep := "?"
		if strings.Contains(connString, "?") {
			sep = "&"
		}
		connString = fmt.Sprintf("%s%ssslmode=%s", connString, sep, cfg.Store.SSLMode)
	}

	return store.NewPostgres(ctx, connString, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
}
