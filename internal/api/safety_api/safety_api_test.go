package safety_api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BearBump/SafeCheck/internal/models"
	"github.com/BearBump/SafeCheck/internal/services/subjects"
	"github.com/BearBump/SafeCheck/internal/storage/pgsafety"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type repo struct {
	subjects map[uint64]*models.Subject
	checkIns []*models.CheckInEvent
	alerts   []*models.AlertRecord
	contacts []*models.TrustedContact
	nextID   uint64
}

func newRepo() *repo {
	return &repo{subjects: map[uint64]*models.Subject{}, nextID: 1}
}

func (r *repo) CreateSubject(ctx context.Context, in models.SubjectCreateInput) (*models.Subject, error) {
	now := time.Now().UTC()
	sub := &models.Subject{
		ID:                       r.nextID,
		FullName:                 in.FullName,
		Timezone:                 in.Timezone,
		LastSeenAt:               now,
		MonitoringEnabled:        true,
		InactivityThresholdHours: in.InactivityThresholdHours,
		GracePeriodHours:         in.GracePeriodHours,
		ReminderFrequencyHours:   in.ReminderFrequencyHours,
		QuietStart:               in.QuietStart,
		QuietEnd:                 in.QuietEnd,
		AlertStatus:              models.AlertStatusOK,
		PushToken:                in.PushToken,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	r.subjects[sub.ID] = sub
	r.nextID++
	return sub, nil
}

func (r *repo) GetSubject(ctx context.Context, id uint64) (*models.Subject, error) {
	sub, ok := r.subjects[id]
	if !ok {
		return nil, pgsafety.ErrNotFound
	}
	return sub, nil
}

func (r *repo) CheckIn(ctx context.Context, id uint64, source string, now time.Time) (*models.CheckInEvent, error) {
	sub, ok := r.subjects[id]
	if !ok {
		return nil, pgsafety.ErrNotFound
	}
	sub.LastSeenAt = now
	sub.AlertStatus = models.AlertStatusOK
	sub.WarningSentAt = nil
	sub.ReminderBucket = 0
	ev := &models.CheckInEvent{ID: uint64(len(r.checkIns) + 1), SubjectID: id, Source: source, CreatedAt: now}
	r.checkIns = append(r.checkIns, ev)
	return ev, nil
}

func (r *repo) ListAlertRecords(ctx context.Context, subjectID uint64, limit, offset int) ([]*models.AlertRecord, error) {
	return r.alerts, nil
}

func (r *repo) ListCheckIns(ctx context.Context, subjectID uint64, limit, offset int) ([]*models.CheckInEvent, error) {
	return r.checkIns, nil
}

func (r *repo) AddContact(ctx context.Context, subjectID uint64, name, phoneNumber string) (*models.TrustedContact, error) {
	c := &models.TrustedContact{ID: uint64(len(r.contacts) + 1), SubjectID: subjectID, Name: name, PhoneNumber: phoneNumber}
	r.contacts = append(r.contacts, c)
	return c, nil
}

func (r *repo) ListContacts(ctx context.Context, subjectID uint64) ([]*models.TrustedContact, error) {
	return r.contacts, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *repo) {
	t.Helper()
	rp := newRepo()
	svc := subjects.New(rp, nil, 0, nil, "")
	api := New(svc)

	router := chi.NewRouter()
	api.Routes(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, rp
}

func doJSON(t *testing.T, method, url, subjectID, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if subjectID != "" {
		req.Header.Set("X-Subject-ID", subjectID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestSafetyAPI_CreateAndGetSubject(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/subjects", "",
		`{"fullName":"Maria Garcia","timezone":"UTC","pushToken":"tok"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, float64(1), body["id"])
	require.Equal(t, "ok", body["alertStatus"])
	// дефолты применены
	require.Equal(t, float64(24), body["inactivityThresholdHours"])

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/subjects/1", "1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Maria Garcia", body["fullName"])
}

func TestSafetyAPI_CheckIn(t *testing.T) {
	srv, rp := newTestServer(t)
	_, _ = rp.CreateSubject(context.Background(), models.SubjectCreateInput{Timezone: "UTC"})
	rp.subjects[1].AlertStatus = models.AlertStatusWarningSent

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/check-in", "1", `{"source":"app_open"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, body["checked_in_at"])
	ci := body["check_in"].(map[string]any)
	require.Equal(t, "app_open", ci["source"])
	require.Equal(t, models.AlertStatusOK, rp.subjects[1].AlertStatus)
}

func TestSafetyAPI_CheckIn_RequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/check-in", "", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/check-in", "abc", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSafetyAPI_CheckIn_UnknownSubject(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/check-in", "99", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSafetyAPI_SubjectAccessControl(t *testing.T) {
	srv, rp := newTestServer(t)
	_, _ = rp.CreateSubject(context.Background(), models.SubjectCreateInput{Timezone: "UTC"})

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/v1/subjects/1", "", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// чужой id — отказ, даже если subject существует
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/subjects/1", "2", "")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSafetyAPI_AlertsAndCheckIns(t *testing.T) {
	srv, rp := newTestServer(t)
	_, _ = rp.CreateSubject(context.Background(), models.SubjectCreateInput{Timezone: "UTC"})
	now := time.Now().UTC()
	rp.alerts = []*models.AlertRecord{{ID: 1, SubjectID: 1, Kind: models.AlertKindWarning, Status: models.AlertDeliverySent, SentAt: now}}
	rp.checkIns = []*models.CheckInEvent{{ID: 1, SubjectID: 1, Source: models.CheckInSourceManual, CreatedAt: now}}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/subjects/1/alerts", "1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["alerts"], 1)

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/subjects/1/check-ins", "1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["checkIns"], 1)
}

func TestSafetyAPI_Contacts(t *testing.T) {
	srv, rp := newTestServer(t)
	_, _ = rp.CreateSubject(context.Background(), models.SubjectCreateInput{Timezone: "UTC"})

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/subjects/1/contacts", "1",
		`{"name":"Alex","phoneNumber":"+15550001111"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "Alex", body["name"])

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/subjects/1/contacts", "1",
		`{"name":"Bad","phoneNumber":"555"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/subjects/1/contacts", "1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["contacts"], 1)
}

func TestSafetyAPI_CreateSubject_BadQuietHours(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/subjects", "",
		`{"timezone":"UTC","quietStart":"25:00","quietEnd":"07:00"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
