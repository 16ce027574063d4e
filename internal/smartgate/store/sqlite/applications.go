package sqlite

import (
	"context"
	"database/sql"

	"github.com/smartgate/server/internal/smartgate/store"
	"github.com/smartgate/server/internal/smartgate/types"
)

const applicationCols = `application_id, kind, user_id, payload_json, status, reviewer_id, note, submitted_at_ms, reviewed_at_ms`

func scanApplication(s scanner) (store.ApplicationRecord, error) {
	var (
		a                  store.ApplicationRecord
		kind, status, body string
		reviewer, note     sql.NullString
		submitted          int64
		reviewed           sql.NullInt64
	)
	if err := s.Scan(&a.ID, &kind, &a.UserID, &body, &status, &reviewer, &note, &submitted, &reviewed); err != nil {
		return store.ApplicationRecord{}, err
	}
	a.Kind = types.ApplicationKind(kind)
	a.Payload = []byte(body)
	a.Status = types.ApplicationStatus(status)
	a.ReviewerID = reviewer.String
	a.Note = note.String
	a.SubmittedAt = fromMs(submitted)
	a.ReviewedAt = timePtr(reviewed)
	return a, nil
}

type applicationRepo struct{ t *sqlTx }

func (r applicationRepo) Get(ctx context.Context, kind types.ApplicationKind, id string) (store.ApplicationRecord, error) {
	return queryOne(ctx, r.t, "get application", scanApplication,
		`SELECT `+applicationCols+` FROM applications WHERE application_id = ? AND kind = ?;`, id, string(kind))
}

func (r applicationRepo) List(ctx context.Context, kind types.ApplicationKind, status types.ApplicationStatus) ([]store.ApplicationRecord, error) {
	return queryList(ctx, r.t, "list applications", scanApplication, `
SELECT `+applicationCols+` FROM applications
WHERE kind = ? AND (? = '' OR status = ?)
ORDER BY submitted_at_ms DESC, rowid DESC;`, string(kind), string(status), string(status))
}

func (r applicationRepo) Insert(ctx context.Context, a store.ApplicationRecord) error {
	_, err := r.t.exec(ctx, `INSERT INTO applications(`+applicationCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		a.ID, string(a.Kind), a.UserID, string(a.Payload), string(a.Status),
		nullStr(a.ReviewerID), nullStr(a.Note), ms(a.SubmittedAt), nullMs(a.ReviewedAt))
	return mapErr("insert application", err)
}

func (r applicationRepo) Update(ctx context.Context, a store.ApplicationRecord) error {
	return mapErr("update application", r.t.execOne(ctx, `
UPDATE applications
SET payload_json = ?, status = ?, reviewer_id = ?, note = ?, reviewed_at_ms = ?
WHERE application_id = ?;`,
		string(a.Payload), string(a.Status), nullStr(a.ReviewerID), nullStr(a.Note), nullMs(a.ReviewedAt), a.ID))
}
