package song

import (
	"context"
	"errors"
	"iter"
)

var (
	// ErrTransient marks a failure worth retrying, such as a dropped
	// connection or an expired stream URL.
	ErrTransient = errors.New("transient error")

	// ErrNoSuggestions is returned when a suggester has nothing to offer.
	ErrNoSuggestions = errors.New("no suggestions available")

	// ErrNotFound is returned by Lookup for unknown ids.
	ErrNotFound = errors.New("song not found")
)

// Transient wraps err so that errors.Is(err, ErrTransient) holds.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return &transientError{err: err}
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() []error { return []error{e.err, ErrTransient} }

// Provider produces songs from a music source and materializes them.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Name identifies the provider in keys, logs and cache file names.
	Name() string

	// Search lazily yields up to limit songs matching query.
	Search(ctx context.Context, query string, limit int) iter.Seq2[*Song, error]

	// Lookup resolves a single song by id.
	Lookup(ctx context.Context, id string) (*Song, error)

	// Materialize makes the song playable locally and returns the file path.
	Materialize(ctx context.Context, s *Song) (string, error)

	// Materialized reports whether the song is already available locally.
	Materialized(s *Song) bool

	// Suggestions returns the provider's suggestion stream, if it has one.
	Suggestions() (Suggester, bool)
}

// Suggester is an endless stream of songs to play when nothing is queued.
type Suggester interface {
	// Next removes and returns the next suggestion.
	Next(ctx context.Context) (*Song, error)

	// Peek returns up to n upcoming suggestions without consuming them.
	Peek(ctx context.Context, n int) ([]*Song, error)

	// Remove drops s from the pending suggestions, if present.
	Remove(s *Song)

	// Played records that s started playing so it is not suggested again soon.
	Played(ctx context.Context, s *Song)

	// Reload discards pending suggestions and keeps the played history.
	Reload(ctx context.Context) error

	// Reset clears pending suggestions and the played history.
	Reset(ctx context.Context) error
}
