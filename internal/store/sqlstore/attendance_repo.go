package sqlstore

import (
	"context"
	"fmt"

	"huddle/internal/domain"
)

type AttendanceRepo struct {
	db *DB
}

func NewAttendanceRepo(db *DB) *AttendanceRepo {
	return &AttendanceRepo{db: db}
}

var _ domain.AttendanceRepository = (*AttendanceRepo)(nil)

func (r *AttendanceRepo) Upsert(ctx context.Context, a *domain.Attendance) error {
	a.UpdatedAt = utc(a.UpdatedAt)
	_, err := r.db.exec(ctx, r.db, `
		INSERT INTO event_attendees (event_id, user_id, status, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (event_id, user_id)
		DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at
	`, a.EventID, a.UserID, string(a.Status), a.UpdatedAt)
	return mapErr(err, "upsert attendance")
}

func (r *AttendanceRepo) ListForEvent(ctx context.Context, eventID string) ([]domain.Attendance, error) {
	rows, err := r.db.query(ctx, r.db, `
		SELECT event_id, user_id, status, updated_at FROM event_attendees WHERE event_id = ? ORDER BY updated_at ASC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	defer rows.Close()

	res := []domain.Attendance{}
	for rows.Next() {
		var a domain.Attendance
		if err := rows.Scan(&a.EventID, &a.UserID, &a.Status, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
