package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// PurgeConfirmationToken must be echoed by any caller of PurgeAll. Per the
// §9 open-question resolution, this is not a production safety rail; it
// only guards against an accidental call with no arguments.
const PurgeConfirmationToken = "PURGE-ALL-DATA-CONFIRMED"

// ErrPurgeNotConfirmed is returned when PurgeAll is called without the
// correct confirmation token.
var ErrPurgeNotConfirmed = errors.New("store: purge requires confirmation token")

// PurgeAll deletes every row in the relational store AND every Redis key
// under the nexus: prefix. Supplements the original's purge_all_data.py,
// which only committed the Redis deletes; §9 resolves this as deleting
// both.
func (f *Facade) PurgeAll(ctx context.Context, rdb *redis.Client, confirmationToken string) error {
	if confirmationToken != PurgeConfirmationToken {
		return ErrPurgeNotConfirmed
	}

	tx, err := f.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin purge tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"artifacts", "operation_evidence", "operations", "subtasks", "sources", "tasks"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("store: purge table %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit purge tx: %w", err)
	}

	if rdb != nil {
		iter := rdb.Scan(ctx, 0, "nexus:*", 1000).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("store: purge redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("store: purge redis keys: %w", err)
			}
		}
	}

	return nil
}
