package kgraph

import (
	"errors"
	"io"
	"log/slog"
)

// Sentinel errors for engine-level conditions.
// These errors can be used with errors.Is() for error checking.
var (
	// ErrQueryUnsupported indicates the query language was used against a
	// backend that has no embedded interpreter. Use the backend's native
	// query surface instead.
	ErrQueryUnsupported = errors.New("query language not supported by this backend")

	// ErrRetrievalUnavailable indicates no vector searcher is configured.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable: no vector searcher configured")

	// ErrIndexUnsupported indicates the configured searcher cannot store
	// documents.
	ErrIndexUnsupported = errors.New("searcher does not support indexing")

	// ErrInvalidConfig indicates the provided configuration is invalid or incomplete.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// CloseWithLog closes an io.Closer and logs any error that occurs.
// This is useful for defer statements where the close error cannot be returned
// but should not be silently ignored.
//
// Example usage:
//
//	pending, err := linker.NewRedisPending(opts)
//	if err != nil {
//		return err
//	}
//	defer kgraph.CloseWithLog(pending, logger, "pending store")
//
// If logger is nil, slog.Default() is used.
func CloseWithLog(closer io.Closer, logger *slog.Logger, name string) {
	if closer == nil {
		return
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := closer.Close(); err != nil {
		logger.Warn("failed to close resource",
			"resource", name,
			"error", err)
	}
}

// closerFunc adapts a function to io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }
