// Package blob is the entry point for export sinks. Callers depend on Store
// and never import the infra implementations directly.
package blob

import (
	"fieldcore/internal/blob/core"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory driver.
	DriverMemory = core.DriverMemory
)

var (
	// ErrExists is returned when a key is written twice.
	ErrExists = core.ErrExists
	// ErrNotFound is returned for a missing key.
	ErrNotFound = core.ErrNotFound
)
