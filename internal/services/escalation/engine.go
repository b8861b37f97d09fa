package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/SafeCheck/internal/integrations/push"
	"github.com/BearBump/SafeCheck/internal/integrations/sms"
	"github.com/BearBump/SafeCheck/internal/models"
	"github.com/BearBump/SafeCheck/internal/storage/pgsafety"
	"github.com/pkg/errors"
)

// ErrNoContacts: grace истёк, а слать SMS некому. Subject остаётся в
// warning_sent, пока контакты не появятся или не случится check-in.
var ErrNoContacts = errors.New("no trusted contacts")

type Repository interface {
	MarkWarningSent(ctx context.Context, id uint64, now time.Time, message string) error
	MarkAlertSent(ctx context.Context, id uint64, now time.Time, deliveryStatus, message string) error
	AppendAlertRecord(ctx context.Context, subjectID uint64, kind, status, message string, at time.Time) error
	ListContacts(ctx context.Context, subjectID uint64) ([]*models.TrustedContact, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Outcome string

const (
	// OutcomeWarningSent — push доставлен, subject переведён в warning_sent.
	OutcomeWarningSent Outcome = "warning_sent"
	// OutcomeWarningFailed — push не доставлен, статус не тронут,
	// попытка записана в лог; следующий проход повторит.
	OutcomeWarningFailed Outcome = "warning_failed"
	// OutcomeAlertSent — SMS-рассылка выполнена (возможно частично),
	// subject переведён в alert_sent.
	OutcomeAlertSent Outcome = "alert_sent"
	// OutcomeSkipped — условный апдейт не прошёл: параллельный проход
	// или check-in уже поменяли состояние.
	OutcomeSkipped Outcome = "skipped"
)

type Engine struct {
	repo  Repository
	pushc push.Client
	smsc  sms.Client
	rl    RateLimiter

	pushLimitPerMinute int64
	smsLimitPerMinute  int64
}

func New(repo Repository, pushc push.Client, smsc sms.Client, rl RateLimiter) *Engine {
	return &Engine{
		repo:               repo,
		pushc:              pushc,
		smsc:               smsc,
		rl:                 rl,
		pushLimitPerMinute: 120,
		smsLimitPerMinute:  60,
	}
}

func (e *Engine) WithRateLimits(pushPerMin, smsPerMin int64) *Engine {
	if pushPerMin > 0 {
		e.pushLimitPerMinute = pushPerMin
	}
	if smsPerMin > 0 {
		e.smsLimitPerMinute = smsPerMin
	}
	return e
}

// EvaluateOne продвигает одного заклейменного subject-а на один шаг
// эскалации. Какой шаг положен, определяет его текущий статус.
func (e *Engine) EvaluateOne(ctx context.Context, now time.Time, sub *models.Subject) (Outcome, error) {
	switch sub.AlertStatus {
	case models.AlertStatusOK:
		return e.sendWarning(ctx, now, sub)
	case models.AlertStatusWarningSent:
		return e.sendSMSAlert(ctx, now, sub)
	default:
		return OutcomeSkipped, nil
	}
}

func (e *Engine) sendWarning(ctx context.Context, now time.Time, sub *models.Subject) (Outcome, error) {
	if sub.PushToken == nil || *sub.PushToken == "" {
		return OutcomeSkipped, nil
	}

	e.throttle(ctx, "push", e.pushLimitPerMinute, now)

	hours := sub.InactivityHours(now)
	title := "SafeCheck: Please Check In"
	body := fmt.Sprintf(
		"You haven't checked in for %d hours. Your contacts will be notified in %d hours if you don't respond.",
		hours, sub.GracePeriodHours)

	if err := e.pushc.Send(ctx, *sub.PushToken, title, body, map[string]string{"action": "check_in"}); err != nil {
		// Переход не фиксируем: без подтверждённой доставки grace-таймер
		// стартовать нельзя. Запишем попытку и отдадим subject-а
		// следующему проходу.
		recMsg := fmt.Sprintf("Warning push failed after %d hours of inactivity", hours)
		if recErr := e.repo.AppendAlertRecord(ctx, sub.ID, models.AlertKindWarning, models.AlertDeliveryFailed, recMsg, now); recErr != nil {
			slog.Error("append warning record", "subject_id", sub.ID, "error", recErr.Error())
		}
		return OutcomeWarningFailed, errors.Wrap(err, "send warning push")
	}

	msg := fmt.Sprintf("Warning sent after %d hours of inactivity", hours)
	err := e.repo.MarkWarningSent(ctx, sub.ID, now, msg)
	if isConflict(err) {
		return OutcomeSkipped, nil
	}
	if err != nil {
		return OutcomeWarningFailed, err
	}
	return OutcomeWarningSent, nil
}

func (e *Engine) sendSMSAlert(ctx context.Context, now time.Time, sub *models.Subject) (Outcome, error) {
	contacts, err := e.repo.ListContacts(ctx, sub.ID)
	if err != nil {
		return OutcomeSkipped, err
	}
	if len(contacts) == 0 {
		return OutcomeSkipped, ErrNoContacts
	}

	hours := sub.InactivityHours(now)
	body := fmt.Sprintf(
		"This is an automated message from SafeCheck. %s has not checked in for %d hours. Please try contacting them directly.",
		sub.DisplayName(), hours)

	sent := 0
	for _, c := range contacts {
		e.throttle(ctx, "sms", e.smsLimitPerMinute, now)
		if err := e.smsc.Send(ctx, c.PhoneNumber, body); err != nil {
			slog.Error("send sms", "subject_id", sub.ID, "contact_id", c.ID, "error", err.Error())
			continue
		}
		sent++
	}

	// Частичный (и даже полный) провал рассылки всё равно коммитит
	// alert_sent: бесконечно долбить контакты SMS-ками хуже, чем
	// отметить попытку со статусом failed.
	status := models.AlertDeliverySent
	if sent < len(contacts) {
		status = models.AlertDeliveryFailed
	}
	msg := fmt.Sprintf("SMS alert sent to %d contacts after %d hours of inactivity", sent, hours)

	err = e.repo.MarkAlertSent(ctx, sub.ID, now, status, msg)
	if isConflict(err) {
		return OutcomeSkipped, nil
	}
	if err != nil {
		return OutcomeSkipped, err
	}
	return OutcomeAlertSent, nil
}

func isConflict(err error) bool {
	return errors.Is(err, pgsafety.ErrConflict)
}

// throttle мягко притормаживает исходящие, как и для других внешних
// провайдеров: при превышении лимита ждём полсекунды, но не отказываем.
func (e *Engine) throttle(ctx context.Context, kind string, limit int64, now time.Time) {
	if e.rl == nil || limit <= 0 {
		return
	}
	key := fmt.Sprintf("rl:%s:%s", kind, now.Format("200601021504"))
	allowed, n, err := e.rl.Allow(ctx, key, limit, 70*time.Second)
	if err != nil {
		slog.Warn("rate limiter unavailable", "kind", kind, "error", err.Error())
		return
	}
	if !allowed {
		slog.Warn("rate limit exceeded", "kind", kind, "count", n)
		time.Sleep(500 * time.Millisecond)
	}
}
