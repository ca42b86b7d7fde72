//go:build !linux

package notify

// NewSender returns a no-op sender on non-Linux platforms.
func NewSender() (Sender, error) {
	return stubSender{}, nil
}
