package pgsafety

import (
	"context"
	"time"

	"github.com/BearBump/SafeCheck/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const subjectColumns = `
  id, full_name, timezone, last_seen_at, monitoring_enabled,
  inactivity_threshold_hours, grace_period_hours, reminder_frequency_hours,
  quiet_start, quiet_end,
  alert_status, warning_sent_at, reminder_bucket,
  push_token,
  created_at, updated_at`

func scanSubject(row pgx.Row) (*models.Subject, error) {
	var s models.Subject
	if err := row.Scan(
		&s.ID, &s.FullName, &s.Timezone, &s.LastSeenAt, &s.MonitoringEnabled,
		&s.InactivityThresholdHours, &s.GracePeriodHours, &s.ReminderFrequencyHours,
		&s.QuietStart, &s.QuietEnd,
		&s.AlertStatus, &s.WarningSentAt, &s.ReminderBucket,
		&s.PushToken,
		&s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Storage) CreateSubject(ctx context.Context, in models.SubjectCreateInput) (*models.Subject, error) {
	now := time.Now().UTC()

	tz := in.Timezone
	if tz == "" {
		tz = "UTC"
	}

	row := s.db.QueryRow(ctx, `
INSERT INTO subjects (
  full_name, timezone, last_seen_at, monitoring_enabled,
  inactivity_threshold_hours, grace_period_hours, reminder_frequency_hours,
  quiet_start, quiet_end, alert_status, push_token,
  created_at, updated_at
)
VALUES ($1,$2,$3,TRUE,$4,$5,$6,$7,$8,$9,$10,$11,$11)
RETURNING `+subjectColumns+`
`, in.FullName, tz, now,
		in.InactivityThresholdHours, in.GracePeriodHours, in.ReminderFrequencyHours,
		in.QuietStart, in.QuietEnd, models.AlertStatusOK, in.PushToken, now)

	sub, err := scanSubject(row)
	if err != nil {
		return nil, errors.Wrap(err, "insert subject")
	}
	return sub, nil
}

func (s *Storage) GetSubject(ctx context.Context, id uint64) (*models.Subject, error) {
	row := s.db.QueryRow(ctx, `SELECT `+subjectColumns+` FROM subjects WHERE id = $1`, id)
	sub, err := scanSubject(row)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select subject")
	}
	return sub, nil
}

// ListReminderCandidates выбирает subject-ов, которым в принципе может быть
// положен reminder: мониторинг включён, статус ok, есть push-токен и с
// последнего check-in прошло не меньше reminder-интервала. Quiet hours и
// bucket-границу проверяет scheduler, бронь не нужна: границу "бронирует"
// условный апдейт MarkReminderSent.
func (s *Storage) ListReminderCandidates(ctx context.Context, now time.Time, limit int) ([]*models.Subject, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+subjectColumns+`
FROM subjects
WHERE monitoring_enabled
  AND alert_status = $2
  AND push_token IS NOT NULL
  AND last_seen_at + make_interval(hours => reminder_frequency_hours) <= $1
ORDER BY last_seen_at ASC
LIMIT $3
`, now.UTC(), models.AlertStatusOK, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select reminder candidates")
	}
	defer rows.Close()

	var out []*models.Subject
	for rows.Next() {
		sub, err := scanSubject(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan reminder candidate")
		}
		out = append(out, sub)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// MarkReminderSent бронирует bucket-границу напоминания: апдейт проходит
// только если bucket строго растёт, так что два пересекающихся прохода не
// отправят два reminder-а за один интервал. lastSeenAt — снапшот, из которого
// bucket посчитан: если между выборкой и бронью случился check-in, эпизод
// уже другой, и бронь со старым bucket-ом обязана проиграть (иначе она
// запишет завышенный bucket и заглушит напоминания нового эпизода).
func (s *Storage) MarkReminderSent(ctx context.Context, id uint64, bucket int32, lastSeenAt time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE subjects SET reminder_bucket = $2, updated_at = now()
WHERE id = $1 AND reminder_bucket < $2 AND alert_status = $3 AND last_seen_at = $4
`, id, bucket, models.AlertStatusOK, lastSeenAt.UTC())
	if err != nil {
		return false, errors.Wrap(err, "mark reminder sent")
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimEscalationCandidates выбирает пачку subject-ов, готовых к warning или
// к SMS-алерту, и "бронирует" их на lease, чтобы пересекающиеся проходы не
// обрабатывали одних и тех же. Использует SELECT ... FOR UPDATE SKIP LOCKED.
func (s *Storage) ClaimEscalationCandidates(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Subject, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT `+subjectColumns+`
FROM subjects
WHERE monitoring_enabled
  AND (claimed_until IS NULL OR claimed_until <= $1)
  AND (
    (alert_status = $2 AND push_token IS NOT NULL
      AND last_seen_at + make_interval(hours => inactivity_threshold_hours) <= $1)
    OR
    (alert_status = $3 AND warning_sent_at IS NOT NULL
      AND warning_sent_at + make_interval(hours => grace_period_hours) <= $1)
  )
ORDER BY last_seen_at ASC
LIMIT $4
FOR UPDATE SKIP LOCKED
`, now.UTC(), models.AlertStatusOK, models.AlertStatusWarningSent, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select escalation candidates")
	}
	defer rows.Close()

	var picked []*models.Subject
	for rows.Next() {
		sub, err := scanSubject(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan escalation candidate")
		}
		picked = append(picked, sub)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	leaseUntil := now.UTC().Add(lease)
	for _, sub := range picked {
		_, err := tx.Exec(ctx, `UPDATE subjects SET claimed_until = $2, updated_at = now() WHERE id = $1`, sub.ID, leaseUntil)
		if err != nil {
			return nil, errors.Wrap(err, "lease subject")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}

// MarkWarningSent атомарно переводит ok -> warning_sent и в той же транзакции
// пишет AlertRecord(kind=warning, status=sent). Вызывается только после
// подтверждённой доставки push-а. ErrConflict — кто-то уже продвинул/сбросил.
func (s *Storage) MarkWarningSent(ctx context.Context, id uint64, now time.Time, message string) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
UPDATE subjects
SET alert_status = $3, warning_sent_at = $2, claimed_until = NULL, updated_at = now()
WHERE id = $1 AND alert_status = $4
`, id, now.UTC(), models.AlertStatusWarningSent, models.AlertStatusOK)
	if err != nil {
		return errors.Wrap(err, "update subject (warning)")
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}

	_, err = tx.Exec(ctx, `
INSERT INTO alerts_log (subject_id, kind, status, message, sent_at, created_at)
VALUES ($1,$2,$3,$4,$5, now())
`, id, models.AlertKindWarning, models.AlertDeliverySent, message, now.UTC())
	if err != nil {
		return errors.Wrap(err, "insert warning record")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

// MarkAlertSent атомарно переводит warning_sent -> alert_sent и пишет
// AlertRecord(kind=sms_alert). warning_sent_at обнуляется: он не-nil строго
// в статусе warning_sent. deliveryStatus = sent|failed (частичный провал
// рассылки всё равно коммитит переход).
func (s *Storage) MarkAlertSent(ctx context.Context, id uint64, now time.Time, deliveryStatus, message string) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
UPDATE subjects
SET alert_status = $2, warning_sent_at = NULL, claimed_until = NULL, updated_at = now()
WHERE id = $1 AND alert_status = $3
`, id, models.AlertStatusAlertSent, models.AlertStatusWarningSent)
	if err != nil {
		return errors.Wrap(err, "update subject (alert)")
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}

	_, err = tx.Exec(ctx, `
INSERT INTO alerts_log (subject_id, kind, status, message, sent_at, created_at)
VALUES ($1,$2,$3,$4,$5, now())
`, id, models.AlertKindSMSAlert, deliveryStatus, message, now.UTC())
	if err != nil {
		return errors.Wrap(err, "insert alert record")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

// CheckIn полностью сбрасывает эпизод неактивности из любого статуса.
func (s *Storage) CheckIn(ctx context.Context, id uint64, source string, now time.Time) (*models.CheckInEvent, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
UPDATE subjects
SET last_seen_at = $2, alert_status = $3, warning_sent_at = NULL,
    reminder_bucket = 0, claimed_until = NULL, updated_at = now()
WHERE id = $1
`, id, now.UTC(), models.AlertStatusOK)
	if err != nil {
		return nil, errors.Wrap(err, "update subject (check-in)")
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}

	var ev models.CheckInEvent
	err = tx.QueryRow(ctx, `
INSERT INTO check_ins (subject_id, source, created_at)
VALUES ($1,$2,$3)
RETURNING id, subject_id, source, created_at
`, id, source, now.UTC()).Scan(&ev.ID, &ev.SubjectID, &ev.Source, &ev.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "insert check-in")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return &ev, nil
}
