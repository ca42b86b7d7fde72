package state

// PlayedStore is the play history used by the history recorder and the
// radio.
type PlayedStore interface {
	RecordPlayed(p Played) error
	RecentlyPlayed(n int) ([]Played, error)
	ClearPlayed(provider string) error
}

// ScrobbleStore holds scrobbles waiting to be resubmitted.
type ScrobbleStore interface {
	AddPendingScrobble(s PendingScrobble) error
	GetPendingScrobbles() ([]PendingScrobble, error)
	DeletePendingScrobble(id int64) error
	UpdatePendingScrobbleAttempt(id int64, errMsg string) error
	DropExhaustedScrobbles(maxAttempts int) (int64, error)
}

var (
	_ PlayedStore   = (*Manager)(nil)
	_ ScrobbleStore = (*Manager)(nil)
)
