package fake

import (
	"context"
	"sync"
)

// FakeClient — заглушка SMS-провайдера для запуска без Twilio credentials.
type FakeClient struct {
	mu   sync.Mutex
	sent []Sent

	// FailFor — номера, для которых Send вернёт ошибку
	// (для тестов частичного провала рассылки).
	FailFor map[string]error
}

type Sent struct {
	To   string
	Body string
}

func New() *FakeClient { return &FakeClient{} }

func (f *FakeClient) Send(ctx context.Context, to, body string) error {
	if err, ok := f.FailFor[to]; ok {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, Sent{To: to, Body: body})
	return nil
}

func (f *FakeClient) SentMessages() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Sent, len(f.sent))
	copy(out, f.sent)
	return out
}
