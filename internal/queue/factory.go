package queue

import (
	"fmt"
	"log/slog"
	"time"
)

// NewStore creates a record store for the given backend type. An empty type
// selects the in-memory store. The connection string is the sqlite DSN or
// the redis address depending on the backend; sessionTTL bounds the
// lifetime of redis entries so queue contents stay session-scoped.
func NewStore(storeType, connectionString string, sessionTTL time.Duration) (store Store, err error) {
	switch storeType {
	case "", "memory":
		store = NewMemoryStore()
	case "sqlite":
		store, err = NewSQLiteStore(connectionString)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sqlite store: %w", err)
		}
	case "redis":
		store, err = NewRedisStore(connectionString, sessionTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis store: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeType)
	}

	slog.Info("record store initialized", "type", storeType)
	return store, nil
}
