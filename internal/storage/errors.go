package storage

import "errors"

// Every backend returns these, possibly wrapped; match with errors.Is.
var (
	// ErrNotFound: no run, ledger, trade set, bar series or aggregate under
	// the requested key.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey: the key is already stored. Run IDs are content
	// hashes, so a duplicate means the same run was stored before; bulk
	// inserts fail as a whole.
	ErrDuplicateKey = errors.New("duplicate key: stored rows are immutable")

	// ErrInvalidInput: nil records, empty IDs or mismatched lengths.
	ErrInvalidInput = errors.New("invalid input")
)
