package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/bleedingdev/usagedeck/internal/batch"
	"github.com/bleedingdev/usagedeck/internal/keystore"
)

// Refresher returns the full fetch/aggregate pipeline for one refresh cycle:
// list every credential, fan out fetches in paced chunks, and fold the
// results into a snapshot. A store failure aborts the cycle; per-credential
// fetch failures do not.
func Refresher(store keystore.Store, client *Client, concurrency int, pause time.Duration, audit AuditFunc) func(ctx context.Context) (*Snapshot, error) {
	return func(ctx context.Context) (*Snapshot, error) {
		creds, err := store.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list credentials: %w", err)
		}

		results := batch.Run(ctx, creds, concurrency, pause, func(ctx context.Context, c keystore.Credential) Result {
			return client.Fetch(ctx, c.ID, c.Secret)
		})

		return Aggregate(results, time.Now(), audit), nil
	}
}
