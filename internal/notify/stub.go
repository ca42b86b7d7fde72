package notify

// stubSender is used when desktop notifications are unavailable.
type stubSender struct{}

func (stubSender) Send(_ Notification) (uint32, error) { return 0, nil }

func (stubSender) Close(_ uint32) error { return nil }
