package subjects

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/SafeCheck/internal/broker/messages"
	"github.com/BearBump/SafeCheck/internal/cache"
	"github.com/BearBump/SafeCheck/internal/clock"
	"github.com/BearBump/SafeCheck/internal/models"
	"github.com/BearBump/SafeCheck/internal/quiethours"
	"github.com/pkg/errors"
)

type Repository interface {
	CreateSubject(ctx context.Context, in models.SubjectCreateInput) (*models.Subject, error)
	GetSubject(ctx context.Context, id uint64) (*models.Subject, error)
	CheckIn(ctx context.Context, id uint64, source string, now time.Time) (*models.CheckInEvent, error)
	ListAlertRecords(ctx context.Context, subjectID uint64, limit, offset int) ([]*models.AlertRecord, error)
	ListCheckIns(ctx context.Context, subjectID uint64, limit, offset int) ([]*models.CheckInEvent, error)
	AddContact(ctx context.Context, subjectID uint64, name, phoneNumber string) (*models.TrustedContact, error)
	ListContacts(ctx context.Context, subjectID uint64) ([]*models.TrustedContact, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Service struct {
	repo       Repository
	cache      cache.BytesCache
	currentTTL time.Duration
	producer   Producer
	topic      string
	clk        clock.Clock
}

func New(repo Repository, c cache.BytesCache, currentTTL time.Duration, producer Producer, topic string) *Service {
	return &Service{
		repo:       repo,
		cache:      c,
		currentTTL: currentTTL,
		producer:   producer,
		topic:      topic,
		clk:        clock.System{},
	}
}

func (s *Service) WithClock(clk clock.Clock) *Service {
	s.clk = clk
	return s
}

func (s *Service) CreateSubject(ctx context.Context, in models.SubjectCreateInput) (*models.Subject, error) {
	if in.InactivityThresholdHours <= 0 {
		in.InactivityThresholdHours = 24
	}
	if in.GracePeriodHours <= 0 {
		in.GracePeriodHours = 2
	}
	if in.ReminderFrequencyHours <= 0 {
		in.ReminderFrequencyHours = 6
	}
	if in.ReminderFrequencyHours > in.InactivityThresholdHours {
		return nil, errors.New("reminder frequency must not exceed inactivity threshold")
	}
	for _, q := range []*string{in.QuietStart, in.QuietEnd} {
		if q == nil {
			continue
		}
		if _, err := quiethours.Parse(*q); err != nil {
			return nil, errors.Wrap(err, "quiet hours")
		}
	}
	if (in.QuietStart == nil) != (in.QuietEnd == nil) {
		return nil, errors.New("quiet hours require both start and end")
	}
	return s.repo.CreateSubject(ctx, in)
}

// CheckIn сбрасывает эпизод неактивности и фиксирует событие.
// Неизвестный source не валим: прилетают старые клиенты, считаем manual.
func (s *Service) CheckIn(ctx context.Context, id uint64, source string) (*models.CheckInEvent, error) {
	if id == 0 {
		return nil, errors.New("subject id is required")
	}
	switch source {
	case models.CheckInSourceAppOpen, models.CheckInSourceManual, models.CheckInSourceNotification:
	default:
		source = models.CheckInSourceManual
	}

	now := s.clk.Now()
	ev, err := s.repo.CheckIn(ctx, id, source, now)
	if err != nil {
		return nil, err
	}

	s.refreshCache(ctx, id)
	s.publish(ctx, messages.MonitoringEvent{
		SubjectID:  id,
		Kind:       messages.MonitoringEventCheckIn,
		Status:     models.AlertStatusOK,
		OccurredAt: now,
		Source:     source,
	})
	return ev, nil
}

func (s *Service) GetSubject(ctx context.Context, id uint64) (*models.Subject, error) {
	if id == 0 {
		return nil, errors.New("subject id is required")
	}

	if s.cache != nil && s.currentTTL > 0 {
		b, ok, err := s.cache.Get(ctx, currentKey(id))
		if err == nil && ok {
			var sub models.Subject
			if json.Unmarshal(b, &sub) == nil {
				return &sub, nil
			}
		}
	}

	sub, err := s.repo.GetSubject(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil && s.currentTTL > 0 {
		b, _ := json.Marshal(sub)
		_ = s.cache.Set(ctx, currentKey(id), b, s.currentTTL)
	}
	return sub, nil
}

func (s *Service) ListAlerts(ctx context.Context, subjectID uint64, limit, offset int) ([]*models.AlertRecord, error) {
	return s.repo.ListAlertRecords(ctx, subjectID, limit, offset)
}

func (s *Service) ListCheckIns(ctx context.Context, subjectID uint64, limit, offset int) ([]*models.CheckInEvent, error) {
	return s.repo.ListCheckIns(ctx, subjectID, limit, offset)
}

func (s *Service) AddContact(ctx context.Context, subjectID uint64, name, phoneNumber string) (*models.TrustedContact, error) {
	if name == "" {
		return nil, errors.New("name is required")
	}
	if phoneNumber == "" || phoneNumber[0] != '+' {
		return nil, errors.New("phoneNumber must be E.164")
	}
	return s.repo.AddContact(ctx, subjectID, name, phoneNumber)
}

func (s *Service) ListContacts(ctx context.Context, subjectID uint64) ([]*models.TrustedContact, error) {
	return s.repo.ListContacts(ctx, subjectID)
}

// ApplyBrokerEvent обрабатывает событие воркера: состояние в postgres
// уже поменялось, наша забота — не отдавать из кэша устаревший статус.
func (s *Service) ApplyBrokerEvent(ctx context.Context, msg messages.MonitoringEvent) error {
	if msg.SubjectID == 0 {
		return errors.New("subject_id is required")
	}
	s.refreshCache(ctx, msg.SubjectID)
	return nil
}

func (s *Service) refreshCache(ctx context.Context, id uint64) {
	if s.cache == nil || s.currentTTL <= 0 {
		return
	}
	sub, err := s.repo.GetSubject(ctx, id)
	if err != nil {
		// Перезагрузить не вышло — хотя бы снимем старое значение.
		_ = s.cache.Del(ctx, currentKey(id))
		return
	}
	b, _ := json.Marshal(sub)
	_ = s.cache.Set(ctx, currentKey(id), b, s.currentTTL)
}

func (s *Service) publish(ctx context.Context, ev messages.MonitoringEvent) {
	if s.producer == nil {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.producer.Publish(ctx, s.topic, []byte(fmt.Sprintf("%d", ev.SubjectID)), b); err != nil {
		slog.Warn("publish monitoring event", "subject_id", ev.SubjectID, "error", err.Error())
	}
}

func currentKey(id uint64) string {
	return fmt.Sprintf("subject:%d:current", id)
}
