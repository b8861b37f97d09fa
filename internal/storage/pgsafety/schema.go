package pgsafety

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS subjects (
  id BIGSERIAL PRIMARY KEY,
  full_name TEXT NULL,
  timezone TEXT NOT NULL DEFAULT 'UTC',
  last_seen_at TIMESTAMPTZ NOT NULL,
  monitoring_enabled BOOLEAN NOT NULL DEFAULT TRUE,
  inactivity_threshold_hours INT NOT NULL DEFAULT 24,
  grace_period_hours INT NOT NULL DEFAULT 2,
  reminder_frequency_hours INT NOT NULL DEFAULT 6,
  quiet_start TEXT NULL,
  quiet_end TEXT NULL,
  alert_status TEXT NOT NULL DEFAULT 'ok',
  warning_sent_at TIMESTAMPTZ NULL,
  reminder_bucket INT NOT NULL DEFAULT 0,
  push_token TEXT NULL,
  claimed_until TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  CHECK (alert_status IN ('ok', 'warning_sent', 'alert_sent')),
  CHECK ((alert_status = 'warning_sent') = (warning_sent_at IS NOT NULL))
)`,
		`CREATE INDEX IF NOT EXISTS idx_subjects_alert_status_last_seen ON subjects(alert_status, last_seen_at) WHERE monitoring_enabled`,
		`
CREATE TABLE IF NOT EXISTS trusted_contacts (
  id BIGSERIAL PRIMARY KEY,
  subject_id BIGINT NOT NULL REFERENCES subjects(id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  phone_number TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_trusted_contacts_subject_id ON trusted_contacts(subject_id)`,
		`
CREATE TABLE IF NOT EXISTS check_ins (
  id BIGSERIAL PRIMARY KEY,
  subject_id BIGINT NOT NULL REFERENCES subjects(id) ON DELETE CASCADE,
  source TEXT NOT NULL DEFAULT 'manual',
  created_at TIMESTAMPTZ NOT NULL,
  CHECK (source IN ('app_open', 'manual', 'notification'))
)`,
		`CREATE INDEX IF NOT EXISTS idx_check_ins_subject_id_created_at ON check_ins(subject_id, created_at DESC)`,
		`
CREATE TABLE IF NOT EXISTS alerts_log (
  id BIGSERIAL PRIMARY KEY,
  subject_id BIGINT NOT NULL REFERENCES subjects(id) ON DELETE CASCADE,
  kind TEXT NOT NULL,
  status TEXT NOT NULL,
  message TEXT NOT NULL DEFAULT '',
  sent_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  CHECK (kind IN ('warning', 'sms_alert')),
  CHECK (status IN ('pending', 'sent', 'failed'))
)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_log_subject_id_sent_at ON alerts_log(subject_id, sent_at DESC)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
