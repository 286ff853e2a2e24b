package scan

import "errors"

// Sentinel errors for scan orchestration.
var (
	// ErrNoScanUnits is a configuration error: Scan was called before any
	// scan unit was registered.
	ErrNoScanUnits = errors.New("no scan units registered")

	// ErrRepositoryUnreachable indicates the target path does not exist or
	// is not a directory.
	ErrRepositoryUnreachable = errors.New("repository unreachable")

	// ErrShutdownTimeout indicates consumers were still busy when the
	// graceful shutdown handshake timed out.
	ErrShutdownTimeout = errors.New("graceful shutdown timeout")

	// ErrScanInProgress is returned when Scan is called while a previous
	// scan is still running.
	ErrScanInProgress = errors.New("scan already in progress")
)
