package push

import "context"

// Client шлёт push-уведомление на устройство subject-а.
// Send возвращает nil только при подтверждённой доставке провайдеру:
// переходы состояния завязаны на этот результат.
type Client interface {
	Send(ctx context.Context, token, title, body string, data map[string]string) error
}
