//go:build linux

package notify

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	busName   = "org.freedesktop.Notifications"
	busPath   = "/org/freedesktop/Notifications"
	appName   = "wavebot"
	appLabel  = "Wavebot"
	category  = "x-wavebot.now-playing"
	capMarkup = "body-markup"
)

type dbusSender struct {
	obj dbus.BusObject
	// markup servers interpret <, > and & in the body
	markup bool
}

// NewSender connects to the session bus notification server. Without a
// session bus it returns a sender that drops everything.
func NewSender() (Sender, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return stubSender{}, nil //nolint:nilerr // headless sessions have no bus
	}
	s := &dbusSender{obj: conn.Object(busName, busPath)}

	var caps []string
	if err := s.obj.Call(busName+".GetCapabilities", 0).Store(&caps); err == nil {
		s.markup = slices.Contains(caps, capMarkup)
	}
	return s, nil
}

func (s *dbusSender) Send(n Notification) (uint32, error) {
	hints := map[string]dbus.Variant{
		"urgency":       dbus.MakeVariant(byte(n.Urgency)),
		"desktop-entry": dbus.MakeVariant(appName),
		"category":      dbus.MakeVariant(category),
	}
	if filepath.IsAbs(n.Icon) {
		hints["image-path"] = dbus.MakeVariant(n.Icon)
	}
	body := n.Body
	if s.markup {
		body = escapeMarkup(body)
	}

	var id uint32
	err := s.obj.Call(busName+".Notify", 0,
		appLabel, n.ReplacesID, n.Icon, n.Title, body, []string{}, hints, n.Timeout,
	).Store(&id)
	return id, err
}

func (s *dbusSender) Close(id uint32) error {
	return s.obj.Call(busName+".CloseNotification", 0, id).Err
}

var markupEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeMarkup(s string) string {
	return markupEscaper.Replace(s)
}
