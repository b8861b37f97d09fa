package escalation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BearBump/SafeCheck/internal/integrations/push/fake"
	smsfake "github.com/BearBump/SafeCheck/internal/integrations/sms/fake"
	"github.com/BearBump/SafeCheck/internal/models"
	"github.com/BearBump/SafeCheck/internal/storage/pgsafety"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	contacts []*models.TrustedContact

	warningErr error
	alertErr   error

	warnings []string
	alerts   []struct{ status, message string }
	records  []struct{ kind, status, message string }
}

func (r *fakeRepo) MarkWarningSent(ctx context.Context, id uint64, now time.Time, message string) error {
	if r.warningErr != nil {
		return r.warningErr
	}
	r.warnings = append(r.warnings, message)
	return nil
}

func (r *fakeRepo) MarkAlertSent(ctx context.Context, id uint64, now time.Time, deliveryStatus, message string) error {
	if r.alertErr != nil {
		return r.alertErr
	}
	r.alerts = append(r.alerts, struct{ status, message string }{deliveryStatus, message})
	return nil
}

func (r *fakeRepo) AppendAlertRecord(ctx context.Context, subjectID uint64, kind, status, message string, at time.Time) error {
	r.records = append(r.records, struct{ kind, status, message string }{kind, status, message})
	return nil
}

func (r *fakeRepo) ListContacts(ctx context.Context, subjectID uint64) ([]*models.TrustedContact, error) {
	return r.contacts, nil
}

func strPtr(s string) *string { return &s }

func overdueSubject(now time.Time, status string) *models.Subject {
	sub := &models.Subject{
		ID:                       1,
		LastSeenAt:               now.Add(-25 * time.Hour),
		MonitoringEnabled:        true,
		InactivityThresholdHours: 24,
		GracePeriodHours:         2,
		AlertStatus:              status,
		PushToken:                strPtr("tok"),
	}
	if status == models.AlertStatusWarningSent {
		w := now.Add(-3 * time.Hour)
		sub.WarningSentAt = &w
	}
	return sub
}

func TestEngine_Warning_SentOnDelivery(t *testing.T) {
	now := time.Now().UTC()
	repo := &fakeRepo{}
	pushc := fake.New()
	e := New(repo, pushc, smsfake.New(), nil)

	out, err := e.EvaluateOne(context.Background(), now, overdueSubject(now, models.AlertStatusOK))
	require.NoError(t, err)
	require.Equal(t, OutcomeWarningSent, out)

	sent := pushc.SentMessages()
	require.Len(t, sent, 1)
	require.Equal(t, "SafeCheck: Please Check In", sent[0].Title)
	require.Contains(t, sent[0].Body, "25 hours")
	require.Contains(t, sent[0].Body, "notified in 2 hours")
	require.Equal(t, "check_in", sent[0].Data["action"])

	require.Len(t, repo.warnings, 1)
	require.Equal(t, "Warning sent after 25 hours of inactivity", repo.warnings[0])
}

func TestEngine_Warning_FailedPushHoldsState(t *testing.T) {
	now := time.Now().UTC()
	repo := &fakeRepo{}
	pushc := fake.New()
	pushc.Err = errors.New("fcm down")
	e := New(repo, pushc, smsfake.New(), nil)

	out, err := e.EvaluateOne(context.Background(), now, overdueSubject(now, models.AlertStatusOK))
	require.Error(t, err)
	require.Equal(t, OutcomeWarningFailed, out)

	// Переход не зафиксирован, но попытка записана
	require.Empty(t, repo.warnings)
	require.Len(t, repo.records, 1)
	require.Equal(t, models.AlertKindWarning, repo.records[0].kind)
	require.Equal(t, models.AlertDeliveryFailed, repo.records[0].status)
}

func TestEngine_Warning_ConflictSkips(t *testing.T) {
	now := time.Now().UTC()
	repo := &fakeRepo{warningErr: pgsafety.ErrConflict}
	e := New(repo, fake.New(), smsfake.New(), nil)

	out, err := e.EvaluateOne(context.Background(), now, overdueSubject(now, models.AlertStatusOK))
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, out)
}

func TestEngine_Alert_AllContacts(t *testing.T) {
	now := time.Now().UTC()
	repo := &fakeRepo{contacts: []*models.TrustedContact{
		{ID: 1, PhoneNumber: "+15550001111"},
		{ID: 2, PhoneNumber: "+15550002222"},
	}}
	smsc := smsfake.New()
	sub := overdueSubject(now, models.AlertStatusWarningSent)
	sub.FullName = strPtr("Maria Garcia")
	e := New(repo, fake.New(), smsc, nil)

	out, err := e.EvaluateOne(context.Background(), now, sub)
	require.NoError(t, err)
	require.Equal(t, OutcomeAlertSent, out)

	sent := smsc.SentMessages()
	require.Len(t, sent, 2)
	require.Contains(t, sent[0].Body, "Maria Garcia has not checked in for 25 hours")

	require.Len(t, repo.alerts, 1)
	require.Equal(t, models.AlertDeliverySent, repo.alerts[0].status)
	require.Equal(t, "SMS alert sent to 2 contacts after 25 hours of inactivity", repo.alerts[0].message)
}

func TestEngine_Alert_PartialFailureStillCommits(t *testing.T) {
	now := time.Now().UTC()
	repo := &fakeRepo{contacts: []*models.TrustedContact{
		{ID: 1, PhoneNumber: "+15550001111"},
		{ID: 2, PhoneNumber: "+15550002222"},
	}}
	smsc := smsfake.New()
	smsc.FailFor = map[string]error{"+15550002222": errors.New("undeliverable")}
	e := New(repo, fake.New(), smsc, nil)

	out, err := e.EvaluateOne(context.Background(), now, overdueSubject(now, models.AlertStatusWarningSent))
	require.NoError(t, err)
	require.Equal(t, OutcomeAlertSent, out)

	require.Len(t, repo.alerts, 1)
	require.Equal(t, models.AlertDeliveryFailed, repo.alerts[0].status)
	require.Contains(t, repo.alerts[0].message, "sent to 1 contacts")
}

func TestEngine_Alert_NoContactsHolds(t *testing.T) {
	now := time.Now().UTC()
	repo := &fakeRepo{}
	e := New(repo, fake.New(), smsfake.New(), nil)

	out, err := e.EvaluateOne(context.Background(), now, overdueSubject(now, models.AlertStatusWarningSent))
	require.ErrorIs(t, err, ErrNoContacts)
	require.Equal(t, OutcomeSkipped, out)
	require.Empty(t, repo.alerts)
}

func TestEngine_Alert_GenericNameFallback(t *testing.T) {
	now := time.Now().UTC()
	repo := &fakeRepo{contacts: []*models.TrustedContact{{ID: 1, PhoneNumber: "+15550001111"}}}
	smsc := smsfake.New()
	e := New(repo, fake.New(), smsc, nil)

	_, err := e.EvaluateOne(context.Background(), now, overdueSubject(now, models.AlertStatusWarningSent))
	require.NoError(t, err)
	require.Contains(t, smsc.SentMessages()[0].Body, "A SafeCheck user has not checked in")
}

func TestEngine_AlertSentStatusIsTerminalForPasses(t *testing.T) {
	now := time.Now().UTC()
	repo := &fakeRepo{}
	e := New(repo, fake.New(), smsfake.New(), nil)

	out, err := e.EvaluateOne(context.Background(), now, overdueSubject(now, models.AlertStatusAlertSent))
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, out)
	require.Empty(t, repo.warnings)
	require.Empty(t, repo.alerts)
}
