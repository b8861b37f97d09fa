package pgsafety

import (
	"context"
	"time"

	"github.com/BearBump/SafeCheck/internal/models"
	"github.com/pkg/errors"
)

// AppendAlertRecord пишет запись аудита вне перехода состояния
// (например, проваленный warning push: статус остаётся ok, попытка
// фиксируется и переигрывается следующим проходом).
func (s *Storage) AppendAlertRecord(ctx context.Context, subjectID uint64, kind, status, message string, at time.Time) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO alerts_log (subject_id, kind, status, message, sent_at, created_at)
VALUES ($1,$2,$3,$4,$5, now())
`, subjectID, kind, status, message, at.UTC())
	return errors.Wrap(err, "insert alert record")
}

func (s *Storage) ListAlertRecords(ctx context.Context, subjectID uint64, limit, offset int) ([]*models.AlertRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT id, subject_id, kind, status, message, sent_at, created_at
FROM alerts_log
WHERE subject_id = $1
ORDER BY sent_at DESC
LIMIT $2 OFFSET $3
`, subjectID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select alert records")
	}
	defer rows.Close()

	var out []*models.AlertRecord
	for rows.Next() {
		var r models.AlertRecord
		if err := rows.Scan(&r.ID, &r.SubjectID, &r.Kind, &r.Status, &r.Message, &r.SentAt, &r.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan alert record")
		}
		out = append(out, &r)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) ListCheckIns(ctx context.Context, subjectID uint64, limit, offset int) ([]*models.CheckInEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT id, subject_id, source, created_at
FROM check_ins
WHERE subject_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`, subjectID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select check-ins")
	}
	defer rows.Close()

	var out []*models.CheckInEvent
	for rows.Next() {
		var ev models.CheckInEvent
		if err := rows.Scan(&ev.ID, &ev.SubjectID, &ev.Source, &ev.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan check-in")
		}
		out = append(out, &ev)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
