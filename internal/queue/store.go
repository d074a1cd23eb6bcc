package queue

import "errors"

// ErrNotFound is returned by store operations targeting an id that is not
// (or no longer) in the queue. Callers use it to treat completions of
// removed records as no-ops instead of resurrecting them.
var ErrNotFound = errors.New("record not found")

// Store holds the ordered record queue. Implementations are safe for use
// from concurrent handlers. List returns a snapshot in insertion order;
// mutations on absent ids return ErrNotFound.
type Store interface {
	// Append adds a record at the end of the queue.
	Append(record *Record) error
	List() ([]*Record, error)
	Get(id string) (*Record, error)
	SetQuality(id string, quality int) error
	// SetCompressed stores the compression result and marks the record
	// compressed in a single operation.
	SetCompressed(id string, data []byte, contentType string) error
	Remove(id string) error
	Clear() error
	Len() (int, error)
	Close() error
}
