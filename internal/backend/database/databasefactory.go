package database

import (
	"context"
	"fmt"
	"log/slog"
)

const (
	TypeSQLite  = "sqlite"
	TypeMongoDB = "mongodb"
)

// NewDatabase opens the configured backend and ensures its schema exists.
// databaseName is only used by backends that have named databases.
func NewDatabase(ctx context.Context, databaseType, connectionString, databaseName string) (database DatabaseService, err error) {
	switch databaseType {
	case TypeSQLite:
		database, err = NewSQLiteDatabase(connectionString)
	case TypeMongoDB:
		database, err = NewMongoDatabase(connectionString, databaseName)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", databaseType)
	}
	if err != nil {
		return nil, err
	}

	// Ensure database schema exists (idempotent), important for in-memory SQLite
	slog.Info("initializing database schema", "type", databaseType)
	if err = database.CreateDatabase(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	return database, nil
}
