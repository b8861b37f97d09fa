package sms

import "context"

// Client рассылает SMS доверенным контактам.
type Client interface {
	Send(ctx context.Context, to, body string) error
}
