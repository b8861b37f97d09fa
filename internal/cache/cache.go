package cache

import (
	"context"
	"time"
)

// BytesCache — байтовый кэш "текущего состояния". Реализация best-effort:
// сервисы обязаны переживать его отсутствие и ошибки.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}
