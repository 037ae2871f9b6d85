package identity

import (
	"context"
	"strings"
)

// NewStorage picks postgres when a database URL is configured, otherwise the
// local SQLite file. An empty path keeps the identity in memory.
func NewStorage(ctx context.Context, databaseURL, sqlitePath string) (Storage, error) {
	if strings.TrimSpace(databaseURL) != "" {
		return NewPostgresStorage(ctx, databaseURL, "")
	}
	if strings.TrimSpace(sqlitePath) == "" {
		return NewMemoryStorage(), nil
	}
	return OpenSQLite(ctx, sqlitePath)
}
