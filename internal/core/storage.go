package core

import (
	"fmt"
	"os"
	"strconv"

	"fieldcore/internal/ids"
	"fieldcore/internal/infra/persistence/memory"
	"fieldcore/internal/infra/persistence/postgres"
	"fieldcore/internal/infra/persistence/sqlite"
	"fieldcore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects and parameterizes a persistent store.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
	// PostgresMaxConns caps the Postgres pool; zero keeps the driver default.
	PostgresMaxConns int
	// NodeID partitions generated ids between processes writing one database.
	NodeID int64
}

// StorageConfigFromEnv reads a StorageConfig from the process environment.
//
//	FIELDCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	FIELDCORE_SQLITE_PATH: path to sqlite file (default ./fieldcore.db)
//	FIELDCORE_POSTGRES_DSN: postgres DSN when driver=postgres
//	FIELDCORE_POSTGRES_MAX_CONNS: postgres pool size (default unlimited)
//	FIELDCORE_NODE_ID: id generator node, 0-1023 (default 0)
func StorageConfigFromEnv() (StorageConfig, error) {
	cfg := StorageConfig{
		Driver:      StorageDriver(os.Getenv("FIELDCORE_STORAGE_DRIVER")),
		SQLitePath:  os.Getenv("FIELDCORE_SQLITE_PATH"),
		PostgresDSN: os.Getenv("FIELDCORE_POSTGRES_DSN"),
	}
	if raw := os.Getenv("FIELDCORE_NODE_ID"); raw != "" {
		node, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("parse FIELDCORE_NODE_ID: %w", err)
		}
		cfg.NodeID = node
	}
	if raw := os.Getenv("FIELDCORE_POSTGRES_MAX_CONNS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return cfg, fmt.Errorf("parse FIELDCORE_POSTGRES_MAX_CONNS: %w", err)
		}
		cfg.PostgresMaxConns = n
	}
	return cfg, nil
}

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
func OpenPersistentStore() (domain.PersistentStore, error) {
	cfg, err := StorageConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return OpenStorage(cfg)
}

// OpenStorage opens the store described by cfg.
func OpenStorage(cfg StorageConfig) (domain.PersistentStore, error) {
	gen, err := ids.New(cfg.NodeID)
	if err != nil {
		return nil, err
	}
	if cfg.Driver == "" {
		cfg.Driver = StorageSQLite
	}
	switch cfg.Driver {
	case StorageMemory:
		return memory.NewStore(gen), nil
	case StorageSQLite:
		store, err := sqlite.NewStore(cfg.SQLitePath, gen)
		if err != nil {
			return nil, err
		}
		return store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(cfg.PostgresDSN, gen,
			postgres.WithPool(postgres.Pool{MaxOpenConns: cfg.PostgresMaxConns, MaxIdleConns: cfg.PostgresMaxConns}))
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}
