// Package errmsg formats errors for the status line.
package errmsg

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Op is the user action that failed, phrased to follow "Failed to".
type Op string

const (
	OpSearch Op = "search"
	OpLookup Op = "look up song"

	OpQueueAdd    Op = "add to queue"
	OpQueueMove   Op = "move queue item"
	OpQueueRemove Op = "remove from queue"

	OpPlaybackNext   Op = "skip to next song"
	OpPlaybackOutput Op = "play audio"

	OpSuggestionsReload Op = "reload suggestions"
	OpSuggestionsReset  Op = "reset suggestions"

	OpCacheClear  Op = "clear cache"
	OpHistoryLoad Op = "load play history"
)

// maxDetail caps the error text; yt-dlp failures can run for pages.
const maxDetail = 160

// Format returns "Failed to <op>: <err>", or "" for a nil error.
func Format(op Op, err error) string {
	return FormatWith(op, "", err)
}

// FormatWith is Format with the subject of the action, such as a query
// or a song key, quoted after the operation.
func FormatWith(op Op, subject string, err error) string {
	if err == nil {
		return ""
	}
	if subject == "" {
		return fmt.Sprintf("Failed to %s: %s", op, detail(err))
	}
	return fmt.Sprintf("Failed to %s '%s': %s", op, subject, detail(err))
}

// detail keeps the first line of err, truncated to maxDetail runes.
func detail(err error) string {
	msg, _, _ := strings.Cut(err.Error(), "\n")
	msg = strings.TrimSpace(msg)
	if utf8.RuneCountInString(msg) <= maxDetail {
		return msg
	}
	r := []rune(msg)
	return string(r[:maxDetail-1]) + "…"
}
