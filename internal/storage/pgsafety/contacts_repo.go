package pgsafety

import (
	"context"

	"github.com/BearBump/SafeCheck/internal/models"
	"github.com/pkg/errors"
)

func (s *Storage) AddContact(ctx context.Context, subjectID uint64, name, phoneNumber string) (*models.TrustedContact, error) {
	var c models.TrustedContact
	err := s.db.QueryRow(ctx, `
INSERT INTO trusted_contacts (subject_id, name, phone_number, created_at)
VALUES ($1,$2,$3, now())
RETURNING id, subject_id, name, phone_number, created_at
`, subjectID, name, phoneNumber).Scan(&c.ID, &c.SubjectID, &c.Name, &c.PhoneNumber, &c.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "insert contact")
	}
	return &c, nil
}

func (s *Storage) ListContacts(ctx context.Context, subjectID uint64) ([]*models.TrustedContact, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, subject_id, name, phone_number, created_at
FROM trusted_contacts
WHERE subject_id = $1
ORDER BY id ASC
`, subjectID)
	if err != nil {
		return nil, errors.Wrap(err, "select contacts")
	}
	defer rows.Close()

	var out []*models.TrustedContact
	for rows.Next() {
		var c models.TrustedContact
		if err := rows.Scan(&c.ID, &c.SubjectID, &c.Name, &c.PhoneNumber, &c.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan contact")
		}
		out = append(out, &c)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
