package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BearBump/SafeCheck/internal/models"
	"github.com/BearBump/SafeCheck/internal/services/subjects"
	"github.com/BearBump/SafeCheck/internal/storage/pgsafety"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct{}

func (r *fakeRepo) CreateSubject(ctx context.Context, in models.SubjectCreateInput) (*models.Subject, error) {
	return &models.Subject{ID: 1, AlertStatus: models.AlertStatusOK}, nil
}
func (r *fakeRepo) GetSubject(ctx context.Context, id uint64) (*models.Subject, error) {
	if id != 1 {
		return nil, pgsafety.ErrNotFound
	}
	return &models.Subject{ID: 1, AlertStatus: models.AlertStatusOK}, nil
}
func (r *fakeRepo) CheckIn(ctx context.Context, id uint64, source string, now time.Time) (*models.CheckInEvent, error) {
	if id != 1 {
		return nil, pgsafety.ErrNotFound
	}
	return &models.CheckInEvent{ID: 1, SubjectID: id, Source: source, CreatedAt: now}, nil
}
func (r *fakeRepo) ListAlertRecords(ctx context.Context, subjectID uint64, limit, offset int) ([]*models.AlertRecord, error) {
	return []*models.AlertRecord{}, nil
}
func (r *fakeRepo) ListCheckIns(ctx context.Context, subjectID uint64, limit, offset int) ([]*models.CheckInEvent, error) {
	return []*models.CheckInEvent{}, nil
}
func (r *fakeRepo) AddContact(ctx context.Context, subjectID uint64, name, phoneNumber string) (*models.TrustedContact, error) {
	return &models.TrustedContact{ID: 1, SubjectID: subjectID, Name: name, PhoneNumber: phoneNumber}, nil
}
func (r *fakeRepo) ListContacts(ctx context.Context, subjectID uint64) ([]*models.TrustedContact, error) {
	return []*models.TrustedContact{}, nil
}

type fakeConsumer struct{}

func (c fakeConsumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRunSafeCheckAPI_ServesEndpoints(t *testing.T) {
	dir := t.TempDir()
	sw := filepath.Join(dir, "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))

	svc := subjects.New(&fakeRepo{}, nil, 0, nil, "safety.events")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	opts := safecheckAPIOpts{
		httpAddr:      "127.0.0.1:0",
		swaggerPath:   sw,
		topic:         "safety.events",
		consumerGroup: "g",
		onListen:      func(httpAddr string) { addrCh <- httpAddr },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- runSafeCheckAPI(ctx, opts, svc, fakeConsumer{})
	}()

	httpAddr := <-addrCh

	resp, err := http.Get("http://" + httpAddr + "/swagger.json")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
	require.Contains(t, string(body), "\"swagger\"")

	resp, err = http.Get("http://" + httpAddr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, "http://"+httpAddr+"/v1/check-in", strings.NewReader(`{"source":"manual"}`))
	require.NoError(t, err)
	req.Header.Set("X-Subject-ID", "1")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
	require.Contains(t, string(body), "checked_in_at")

	cancel()
	require.Error(t, <-errCh)
}

func TestRunSafeCheckAPI_RequiresSwagger(t *testing.T) {
	svc := subjects.New(&fakeRepo{}, nil, 0, nil, "safety.events")
	err := runSafeCheckAPI(context.Background(), safecheckAPIOpts{httpAddr: "127.0.0.1:0"}, svc, fakeConsumer{})
	require.Error(t, err)
}
