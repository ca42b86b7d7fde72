package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Urgency is the freedesktop notification urgency hint.
type Urgency byte

const (
	UrgencyLow      Urgency = 0
	UrgencyNormal   Urgency = 1
	UrgencyCritical Urgency = 2
)

// Notification contains data for a desktop notification.
type Notification struct {
	Title      string  // Summary text (required)
	Body       string  // Body text (optional, supports basic markup)
	Icon       string  // Path to image file or icon name (optional)
	Timeout    int32   // ms, -1 = server default, 0 = never expire
	ReplacesID uint32  // 0 = new notification, >0 = replace existing
	Urgency    Urgency // Low, Normal, Critical
}

// Sender shows desktop notifications.
type Sender interface {
	// Send shows a notification and returns its ID.
	// Returns 0 and nil error if notifications are unavailable.
	Send(n Notification) (uint32, error)
	// Close closes a notification by ID.
	Close(id uint32) error
}

const (
	desktopTimeout = 5000
	artworkTimeout = 5 * time.Second
)

// Desktop turns song events into desktop notifications. The "now playing"
// popup replaces the previous one instead of stacking up.
type Desktop struct {
	sender  Sender
	artwork *Artwork
	logger  zerolog.Logger

	mu           sync.Mutex
	nowPlayingID uint32
}

// NewDesktop creates a desktop sink. artwork may be nil.
func NewDesktop(sender Sender, artwork *Artwork, logger zerolog.Logger) *Desktop {
	return &Desktop{
		sender:  sender,
		artwork: artwork,
		logger:  logger.With().Str("component", "desktop").Logger(),
	}
}

func (d *Desktop) Notify(e Event) {
	if e.Song == nil {
		return
	}
	n := Notification{
		Title:   e.Cause.String(),
		Body:    e.Song.String(),
		Timeout: desktopTimeout,
		Urgency: UrgencyLow,
	}
	switch e.Cause {
	case NowPlaying:
		n.Urgency = UrgencyNormal
		if by := e.Song.RequestedBy(); by != "" {
			n.Body += "\nrequested by " + by
		}
		n.Icon = d.icon(e.Song.ArtworkURL())
		d.mu.Lock()
		n.ReplacesID = d.nowPlayingID
		d.mu.Unlock()
	case QueueAdd, QueueRemove:
	case LoadFailed:
		n.Urgency = UrgencyCritical
	default:
		return
	}

	id, err := d.sender.Send(n)
	if err != nil {
		d.logger.Warn().Err(err).Msg("desktop notification failed")
		return
	}
	if e.Cause == NowPlaying {
		d.mu.Lock()
		d.nowPlayingID = id
		d.mu.Unlock()
	}
}

func (d *Desktop) icon(url string) string {
	if d.artwork == nil || url == "" {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), artworkTimeout)
	defer cancel()
	path, err := d.artwork.Thumbnail(ctx, url)
	if err != nil {
		d.logger.Debug().Err(err).Str("url", url).Msg("no artwork")
		return ""
	}
	return path
}
