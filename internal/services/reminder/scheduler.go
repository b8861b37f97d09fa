package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/SafeCheck/internal/integrations/push"
	"github.com/BearBump/SafeCheck/internal/models"
	"github.com/BearBump/SafeCheck/internal/quiethours"
	"github.com/pkg/errors"
)

type Repository interface {
	ListReminderCandidates(ctx context.Context, now time.Time, limit int) ([]*models.Subject, error)
	MarkReminderSent(ctx context.Context, id uint64, bucket int32, lastSeenAt time.Time) (bool, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Outcome string

const (
	OutcomeSent Outcome = "sent"
	// OutcomeQuietHours — сейчас у subject-а тихие часы, напоминание
	// подавлено. Эскалацию это не трогает.
	OutcomeQuietHours Outcome = "quiet_hours"
	// OutcomeSkipped — границу интервала уже забрал другой проход
	// (или subject ещё не дошёл до новой границы).
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

type Scheduler struct {
	repo  Repository
	pushc push.Client
	rl    RateLimiter

	pushLimitPerMinute int64
}

func New(repo Repository, pushc push.Client, rl RateLimiter) *Scheduler {
	return &Scheduler{
		repo:               repo,
		pushc:              pushc,
		rl:                 rl,
		pushLimitPerMinute: 120,
	}
}

func (s *Scheduler) WithRateLimit(pushPerMin int64) *Scheduler {
	if pushPerMin > 0 {
		s.pushLimitPerMinute = pushPerMin
	}
	return s
}

// EvaluateOne решает, положено ли subject-у напоминание прямо сейчас,
// и шлёт не больше одного на интервал неактивности.
func (s *Scheduler) EvaluateOne(ctx context.Context, now time.Time, sub *models.Subject) (Outcome, error) {
	if sub.PushToken == nil || *sub.PushToken == "" {
		return OutcomeSkipped, nil
	}

	quiet, err := quiethours.InWindowAt(sub.QuietStart, sub.QuietEnd, sub.Timezone, now)
	if err != nil {
		// Битая таймзона не должна глушить напоминания совсем.
		slog.Warn("quiet hours check", "subject_id", sub.ID, "error", err.Error())
	} else if quiet {
		return OutcomeQuietHours, nil
	}

	interval := time.Duration(sub.ReminderFrequencyHours) * time.Hour
	if interval <= 0 {
		return OutcomeSkipped, nil
	}
	bucket := int32(now.Sub(sub.LastSeenAt) / interval)
	if bucket <= sub.ReminderBucket {
		return OutcomeSkipped, nil
	}

	// Сначала бронируем границу, потом шлём: пересекающиеся проходы не
	// отправят дубль. Провал доставки сжигает границу до следующей —
	// лишний пропуск безобиднее двойного пинга. Бронь привязана к
	// last_seen_at снапшота: check-in между выборкой и бронью её отменяет.
	claimed, err := s.repo.MarkReminderSent(ctx, sub.ID, bucket, sub.LastSeenAt)
	if err != nil {
		return OutcomeFailed, err
	}
	if !claimed {
		return OutcomeSkipped, nil
	}

	s.throttle(ctx, now)

	title := "SafeCheck Reminder"
	body := "Take a moment to check in and let your loved ones know you're okay."
	if err := s.pushc.Send(ctx, *sub.PushToken, title, body, map[string]string{"action": "check_in"}); err != nil {
		return OutcomeFailed, errors.Wrap(err, "send reminder push")
	}
	return OutcomeSent, nil
}

func (s *Scheduler) throttle(ctx context.Context, now time.Time) {
	if s.rl == nil || s.pushLimitPerMinute <= 0 {
		return
	}
	key := fmt.Sprintf("rl:push:%s", now.Format("200601021504"))
	allowed, n, err := s.rl.Allow(ctx, key, s.pushLimitPerMinute, 70*time.Second)
	if err != nil {
		slog.Warn("rate limiter unavailable", "kind", "push", "error", err.Error())
		return
	}
	if !allowed {
		slog.Warn("rate limit exceeded", "kind", "push", "count", n)
		time.Sleep(500 * time.Millisecond)
	}
}
