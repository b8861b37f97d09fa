package fake

import (
	"context"
	"sync"
)

// FakeClient — заглушка push-провайдера для локального запуска без
// FCM credentials. Складывает отправленное в память.
type FakeClient struct {
	mu   sync.Mutex
	sent []Sent

	// Err, если задан, возвращается из Send (для тестов провала доставки).
	Err error
}

type Sent struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

func New() *FakeClient { return &FakeClient{} }

func (f *FakeClient) Send(ctx context.Context, token, title, body string, data map[string]string) error {
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, Sent{Token: token, Title: title, Body: body, Data: data})
	return nil
}

func (f *FakeClient) SentMessages() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Sent, len(f.sent))
	copy(out, f.sent)
	return out
}
