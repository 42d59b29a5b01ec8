// Package store defines the persistence interface for delay channel
// backends.
package store

import (
	"context"

	"github.com/xraph/stepchain/step"
)

// Store is a delivery store that can prepare its own schema.
// Backends: Postgres, Redis, and Memory.
type Store interface {
	step.Store

	// Migrate creates or updates the schema. A no-op for schemaless backends.
	Migrate(ctx context.Context) error
}
