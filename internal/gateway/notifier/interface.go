package notifier

// TextNotifier defines a minimal text notification interface.
// It is intentionally small so different components can depend on it without
// importing concrete implementations (e.g. Telegram).
type TextNotifier interface {
	SendText(text string) error
}

// CommandHandler answers one remote command with a text reply. Handlers are
// read-only or flip a run/pause flag; they never touch the position directly.
type CommandHandler func() string

// Noop discards every message; used when notifications are disabled.
type Noop struct{}

func (Noop) SendText(string) error { return nil }
