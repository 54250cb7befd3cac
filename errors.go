package peerctl

import "errors"

// Error taxonomy. Layers wrap these with fmt.Errorf("…: %w", err) context;
// the CLI maps them to exit codes with errors.Is.
var (
	// ErrDuplicateName rejects an add for a name already active in the registry.
	ErrDuplicateName = errors.New("peer name already exists")
	// ErrNotFound rejects a remove for a name with no active record.
	ErrNotFound = errors.New("peer not found")
	// ErrPoolExhausted means the next candidate address exceeds the pool ceiling.
	ErrPoolExhausted = errors.New("address pool exhausted")
	// ErrServerNotInitialized means `peerctl init` has not produced
	// server.yaml and the empty registry yet.
	ErrServerNotInitialized = errors.New("server not initialized")
	// ErrEntropyUnavailable means the secure random source failed. Fatal,
	// never retried.
	ErrEntropyUnavailable = errors.New("entropy source unavailable")
	// ErrPersistence means a registry write failed; the command aborts and
	// the on-disk state must be inspected manually.
	ErrPersistence = errors.New("registry persistence failure")
	// ErrReconciliation means the live tunnel could not be updated. The
	// registry mutation stands; the administrator retries the apply step.
	ErrReconciliation = errors.New("reconciliation failure")
)
