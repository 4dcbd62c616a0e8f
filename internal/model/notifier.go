package model

// Notifier delivers alert messages. Bodies are HTML.
type Notifier interface {
	Send(subject, body string) error
}
