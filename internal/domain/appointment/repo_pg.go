package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/api/internal/domain/availability"
	"github.com/clinicore/api/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const reqCols = `id, requester_id, description, comment, considerations, status,
	cancel_reason, is_paid, paid_at, payment_note, scheduled_start, scheduled_end,
	created_at, updated_at`

func (r *repoPG) scanRequest(row pgx.Row) (*Request, error) {
	var req Request
	err := row.Scan(&req.ID, &req.RequesterID, &req.Description, &req.Comment,
		&req.Considerations, &req.Status, &req.CancelReason, &req.IsPaid, &req.PaidAt,
		&req.PaymentNote, &req.ScheduledStart, &req.ScheduledEnd, &req.CreatedAt, &req.UpdatedAt)
	return &req, err
}

func (r *repoPG) Create(ctx context.Context, req *Request) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointment_requests (id, requester_id, description, comment,
			considerations, status, is_paid, scheduled_start, scheduled_end)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		req.ID, req.RequesterID, req.Description, req.Comment, req.Considerations,
		req.Status, req.IsPaid, req.ScheduledStart, req.ScheduledEnd)
	if err != nil {
		return err
	}
	for i := range req.Proposals {
		p := &req.Proposals[i]
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		p.RequestID = req.ID
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO proposals (id, request_id, rank, start_at, is_selected)
			VALUES ($1,$2,$3,$4,$5)`,
			p.ID, p.RequestID, p.Rank, p.StartAt, p.IsSelected)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	req, err := r.scanRequest(r.conn(ctx).QueryRow(ctx,
		`SELECT `+reqCols+` FROM appointment_requests WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	req.Proposals, err = r.loadProposals(ctx, id)
	return req, err
}

func (r *repoPG) loadProposals(ctx context.Context, requestID uuid.UUID) ([]Proposal, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, request_id, rank, start_at, is_selected
		FROM proposals WHERE request_id = $1 ORDER BY rank ASC`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	proposals := []Proposal{}
	for rows.Next() {
		var p Proposal
		if err := rows.Scan(&p.ID, &p.RequestID, &p.Rank, &p.StartAt, &p.IsSelected); err != nil {
			return nil, err
		}
		proposals = append(proposals, p)
	}
	return proposals, rows.Err()
}

func (r *repoPG) List(ctx context.Context, requesterID uuid.UUID, limit, offset int) ([]*Request, int, error) {
	query := `SELECT ` + reqCols + ` FROM appointment_requests WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM appointment_requests WHERE 1=1`
	var args []interface{}

	if requesterID != uuid.Nil {
		query += ` AND requester_id = $1`
		countQuery += ` AND requester_id = $1`
		args = append(args, requesterID)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY created_at DESC`
	if requesterID != uuid.Nil {
		query += ` LIMIT $2 OFFSET $3`
	} else {
		query += ` LIMIT $1 OFFSET $2`
	}
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Request
	for rows.Next() {
		req, err := r.scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, req)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for _, req := range items {
		if req.Proposals, err = r.loadProposals(ctx, req.ID); err != nil {
			return nil, 0, err
		}
	}
	return items, total, nil
}

func (r *repoPG) Confirm(ctx context.Context, id uuid.UUID, proposalID *uuid.UUID, start, end time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment_requests
		SET status=$2, scheduled_start=$3, scheduled_end=$4, updated_at=NOW()
		WHERE id = $1`,
		id, StatusConfirmed, start, end)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	if proposalID != nil {
		_, err = r.conn(ctx).Exec(ctx, `
			UPDATE proposals SET is_selected = (id = $2)
			WHERE request_id = $1`, id, *proposalID)
	}
	return err
}

func (r *repoPG) Cancel(ctx context.Context, id uuid.UUID, reason *string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment_requests
		SET status=$2, cancel_reason=$3, updated_at=NOW()
		WHERE id = $1`,
		id, StatusCancelled, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) SetPaid(ctx context.Context, id uuid.UUID, isPaid bool, paidAt *time.Time, note *string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment_requests
		SET is_paid=$2, paid_at=$3, payment_note=$4, updated_at=NOW()
		WHERE id = $1`,
		id, isPaid, paidAt, note)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) Update(ctx context.Context, req *Request) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment_requests
		SET requester_id=$2, description=$3, comment=$4, considerations=$5,
			scheduled_start=$6, scheduled_end=$7, updated_at=NOW()
		WHERE id = $1`,
		req.ID, req.RequesterID, req.Description, req.Comment, req.Considerations,
		req.ScheduledStart, req.ScheduledEnd)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointment_requests WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) HasActiveConflict(ctx context.Context, start, end time.Time, excludeID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointment_requests
			WHERE status = $1 AND id <> $4
				AND scheduled_start < $3 AND scheduled_end > $2
		)`, StatusConfirmed, start, end, excludeID).Scan(&exists)
	return exists, err
}

func (r *repoPG) ListConfirmedInWindow(ctx context.Context, from, to time.Time) ([]*Request, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+reqCols+` FROM appointment_requests
		WHERE status = $1 AND scheduled_start <= $3 AND scheduled_end >= $2
		ORDER BY scheduled_start ASC, created_at ASC`, StatusConfirmed, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Request
	for rows.Next() {
		req, err := r.scanRequest(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, req)
	}
	return items, rows.Err()
}

func (r *repoPG) BusyRanges(ctx context.Context, from, to time.Time) ([]availability.Range, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT scheduled_start, scheduled_end FROM appointment_requests
		WHERE status = $1 AND scheduled_start < $3 AND scheduled_end > $2`,
		StatusConfirmed, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ranges []availability.Range
	for rows.Next() {
		var rg availability.Range
		if err := rows.Scan(&rg.Start, &rg.End); err != nil {
			return nil, err
		}
		ranges = append(ranges, rg)
	}
	return ranges, rows.Err()
}
