package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/SafeCheck/internal/broker/messages"
	"github.com/BearBump/SafeCheck/internal/models"
	"github.com/BearBump/SafeCheck/internal/services/escalation"
	"github.com/BearBump/SafeCheck/internal/services/reminder"
	"github.com/pkg/errors"
)

type Repository interface {
	ListReminderCandidates(ctx context.Context, now time.Time, limit int) ([]*models.Subject, error)
	ClaimEscalationCandidates(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Subject, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Runner гоняет два независимых прохода по subject-ам: напоминания
// (пока статус ok) и эскалацию (warning -> SMS). Исходы публикует в
// kafka, откуда api освежает свой кэш.
type Runner struct {
	repo      Repository
	scheduler *reminder.Scheduler
	engine    *escalation.Engine
	producer  Producer

	topic string

	reminderInterval   time.Duration
	escalationInterval time.Duration
	batchSize          int
	concurrency        int
	lease              time.Duration

	reminderCh   chan struct{}
	escalationCh chan struct{}

	startedAtUnixNano          int64
	lastReminderPassUnixNano   atomic.Int64
	lastEscalationPassUnixNano atomic.Int64
	totalRemindersSent         atomic.Int64
	totalQuietSuppressed       atomic.Int64
	totalWarningsSent          atomic.Int64
	totalAlertsSent            atomic.Int64
	totalErrors                atomic.Int64
	inFlight                   atomic.Int64
	lastErrorMu                sync.Mutex
	lastError                  string
}

func New(repo Repository, scheduler *reminder.Scheduler, engine *escalation.Engine, producer Producer, topic string) *Runner {
	return &Runner{
		repo:               repo,
		scheduler:          scheduler,
		engine:             engine,
		producer:           producer,
		topic:              topic,
		reminderInterval:   60 * time.Second,
		escalationInterval: 60 * time.Second,
		batchSize:          100,
		concurrency:        10,
		lease:              120 * time.Second,
		reminderCh:         make(chan struct{}, 1),
		escalationCh:       make(chan struct{}, 1),
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
	}
}

func (r *Runner) WithSettings(reminderInterval, escalationInterval time.Duration, batchSize, concurrency int, lease time.Duration) *Runner {
	if reminderInterval > 0 {
		r.reminderInterval = reminderInterval
	}
	if escalationInterval > 0 {
		r.escalationInterval = escalationInterval
	}
	if batchSize > 0 {
		r.batchSize = batchSize
	}
	if concurrency > 0 {
		r.concurrency = concurrency
	}
	if lease > 0 {
		r.lease = lease
	}
	return r
}

// TriggerReminders forces an immediate reminder pass (best-effort, non-blocking).
func (r *Runner) TriggerReminders() {
	select {
	case r.reminderCh <- struct{}{}:
	default:
	}
}

// TriggerEscalations forces an immediate escalation pass (best-effort, non-blocking).
func (r *Runner) TriggerEscalations() {
	select {
	case r.escalationCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt            time.Time  `json:"startedAt"`
	LastReminderPassAt   *time.Time `json:"lastReminderPassAt,omitempty"`
	LastEscalationPassAt *time.Time `json:"lastEscalationPassAt,omitempty"`
	TotalRemindersSent   int64      `json:"totalRemindersSent"`
	TotalQuietSuppressed int64      `json:"totalQuietSuppressed"`
	TotalWarningsSent    int64      `json:"totalWarningsSent"`
	TotalAlertsSent      int64      `json:"totalAlertsSent"`
	TotalErrors          int64      `json:"totalErrors"`
	InFlight             int64      `json:"inFlight"`
	LastError            string     `json:"lastError,omitempty"`
}

func (r *Runner) Stats() Stats {
	st := Stats{
		StartedAt:            time.Unix(0, r.startedAtUnixNano).UTC(),
		TotalRemindersSent:   r.totalRemindersSent.Load(),
		TotalQuietSuppressed: r.totalQuietSuppressed.Load(),
		TotalWarningsSent:    r.totalWarningsSent.Load(),
		TotalAlertsSent:      r.totalAlertsSent.Load(),
		TotalErrors:          r.totalErrors.Load(),
		InFlight:             r.inFlight.Load(),
	}
	if n := r.lastReminderPassUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastReminderPassAt = &t
	}
	if n := r.lastEscalationPassUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastEscalationPassAt = &t
	}
	r.lastErrorMu.Lock()
	st.LastError = r.lastError
	r.lastErrorMu.Unlock()
	return st
}

func (r *Runner) Run(ctx context.Context) error {
	rt := time.NewTicker(r.reminderInterval)
	defer rt.Stop()
	et := time.NewTicker(r.escalationInterval)
	defer et.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-rt.C:
			r.RunReminderPass(ctx)
		case <-r.reminderCh:
			r.RunReminderPass(ctx)
		case <-et.C:
			r.RunEscalationPass(ctx)
		case <-r.escalationCh:
			r.RunEscalationPass(ctx)
		}
	}
}

type PassSummary struct {
	RemindersSent     int
	SkippedQuietHours int
	WarningsSent      int
	AlertsSent        int
	Errors            []string
}

func (r *Runner) RunReminderPass(ctx context.Context) PassSummary {
	now := time.Now().UTC()
	r.lastReminderPassUnixNano.Store(now.UnixNano())

	subs, err := r.repo.ListReminderCandidates(ctx, now, r.batchSize)
	if err != nil {
		r.noteError(err)
		slog.Error("list reminder candidates", "error", err.Error())
		return PassSummary{Errors: []string{err.Error()}}
	}

	var mu sync.Mutex
	var sum PassSummary

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	for _, sub := range subs {
		sem <- struct{}{}
		wg.Add(1)
		subCopy := sub
		r.inFlight.Add(1)
		go func() {
			defer func() {
				r.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			out, err := r.scheduler.EvaluateOne(ctx, now, subCopy)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				r.noteError(err)
				sum.Errors = append(sum.Errors, err.Error())
				slog.Error("reminder pass", "subject_id", subCopy.ID, "error", err.Error())
			case out == reminder.OutcomeSent:
				sum.RemindersSent++
				r.totalRemindersSent.Add(1)
				r.publish(ctx, messages.MonitoringEvent{
					SubjectID:  subCopy.ID,
					Kind:       messages.MonitoringEventReminder,
					OccurredAt: now,
				})
			case out == reminder.OutcomeQuietHours:
				sum.SkippedQuietHours++
				r.totalQuietSuppressed.Add(1)
			}
		}()
	}
	wg.Wait()
	return sum
}

func (r *Runner) RunEscalationPass(ctx context.Context) PassSummary {
	now := time.Now().UTC()
	r.lastEscalationPassUnixNano.Store(now.UnixNano())

	subs, err := r.repo.ClaimEscalationCandidates(ctx, now, r.batchSize, r.lease)
	if err != nil {
		r.noteError(err)
		slog.Error("claim escalation candidates", "error", err.Error())
		return PassSummary{Errors: []string{err.Error()}}
	}

	var mu sync.Mutex
	var sum PassSummary

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	for _, sub := range subs {
		sem <- struct{}{}
		wg.Add(1)
		subCopy := sub
		r.inFlight.Add(1)
		go func() {
			defer func() {
				r.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			out, err := r.engine.EvaluateOne(ctx, now, subCopy)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, escalation.ErrNoContacts):
				// Ожидаемое состояние, не ошибка: ждём контактов или check-in.
				slog.Warn("escalation held", "subject_id", subCopy.ID, "reason", "no trusted contacts")
			case err != nil:
				r.noteError(err)
				sum.Errors = append(sum.Errors, err.Error())
				slog.Error("escalation pass", "subject_id", subCopy.ID, "error", err.Error())
			case out == escalation.OutcomeWarningSent:
				sum.WarningsSent++
				r.totalWarningsSent.Add(1)
				r.publish(ctx, messages.MonitoringEvent{
					SubjectID:  subCopy.ID,
					Kind:       messages.MonitoringEventWarning,
					Status:     models.AlertStatusWarningSent,
					OccurredAt: now,
				})
			case out == escalation.OutcomeAlertSent:
				sum.AlertsSent++
				r.totalAlertsSent.Add(1)
				r.publish(ctx, messages.MonitoringEvent{
					SubjectID:  subCopy.ID,
					Kind:       messages.MonitoringEventSMSAlert,
					Status:     models.AlertStatusAlertSent,
					OccurredAt: now,
				})
			}
		}()
	}
	wg.Wait()
	return sum
}

// publish шлёт событие в kafka best-effort: переходы уже зафиксированы
// в postgres, терять их из-за недоступного брокера нельзя.
// Kafka может быть не готова сразу после старта docker compose,
// поэтому немного ретраим.
func (r *Runner) publish(ctx context.Context, ev messages.MonitoringEvent) {
	if r.producer == nil {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		slog.Error("marshal kafka msg", "error", err.Error())
		return
	}
	key := []byte(fmt.Sprintf("%d", ev.SubjectID))
	for i := 0; i < 10; i++ {
		if err = r.producer.Publish(ctx, r.topic, key, b); err == nil {
			return
		}
		time.Sleep(time.Duration(150*(i+1)) * time.Millisecond)
	}
	slog.Error("publish monitoring event", "subject_id", ev.SubjectID, "error", err.Error())
}

func (r *Runner) noteError(err error) {
	r.totalErrors.Add(1)
	r.lastErrorMu.Lock()
	r.lastError = err.Error()
	r.lastErrorMu.Unlock()
}
