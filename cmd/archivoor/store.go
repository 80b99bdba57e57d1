package main

import (
	"context"
	"fmt"

	"github.com/ethpandaops/archivoor/pkg/archivestore"
)

// openStore validates the database settings and opens the store. The
// caller must Stop it.
func openStore(ctx context.Context) (archivestore.Store, error) {
	if err := cfg.Database.Validate(); err != nil {
		return nil, fmt.Errorf("validating database config: %w", err)
	}

	st := archivestore.NewStore(log, &cfg.Database)
	if err := st.Start(ctx); err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	return st, nil
}

func stopStore(st archivestore.Store) {
	if err := st.Stop(); err != nil {
		log.WithError(err).Warn("Failed to close store")
	}
}
