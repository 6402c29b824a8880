package planner

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

const itemCols = `id, kind, title, note, start_at, end_at, all_day, location,
	appointment_id, created_by, created_at, updated_at`

func (r *repoPG) scanItem(row pgx.Row) (*Item, error) {
	var i Item
	err := row.Scan(&i.ID, &i.Kind, &i.Title, &i.Note, &i.StartAt, &i.EndAt, &i.AllDay,
		&i.Location, &i.AppointmentID, &i.CreatedBy, &i.CreatedAt, &i.UpdatedAt)
	return &i, err
}

func (r *repoPG) Create(ctx context.Context, item *Item) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO planner_items (id, kind, title, note, start_at, end_at, all_day,
			location, appointment_id, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		item.ID, item.Kind, item.Title, item.Note, item.StartAt, item.EndAt, item.AllDay,
		item.Location, item.AppointmentID, item.CreatedBy)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Item, error) {
	return r.scanItem(r.conn(ctx).QueryRow(ctx, `SELECT `+itemCols+` FROM planner_items WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, item *Item) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE planner_items SET kind=$2, title=$3, note=$4, start_at=$5, end_at=$6,
			all_day=$7, location=$8, appointment_id=$9, updated_at=NOW()
		WHERE id = $1`,
		item.ID, item.Kind, item.Title, item.Note, item.StartAt, item.EndAt,
		item.AllDay, item.Location, item.AppointmentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM planner_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) ListInWindow(ctx context.Context, from, to time.Time) ([]*Item, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+itemCols+` FROM planner_items
		WHERE start_at <= $2 AND end_at >= $1
		ORDER BY start_at ASC, created_at ASC`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *repoPG) ListOverlapping(ctx context.Context, start, end time.Time, excludeID uuid.UUID) ([]*Item, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+itemCols+` FROM planner_items
		WHERE all_day = false AND start_at < $2 AND end_at > $1 AND id <> $3
		ORDER BY start_at ASC`, start, end, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *repoPG) collect(rows pgx.Rows) ([]*Item, error) {
	var items []*Item
	for rows.Next() {
		i, err := r.scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

// BusyRanges feeds slot generation: timed planner entries block booking,
// all-day entries do not.
func (r *repoPG) BusyRanges(ctx context.Context, from, to time.Time) ([]availability.Range, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT start_at, end_at FROM planner_items
		WHERE all_day = false AND start_at < $2 AND end_at > $1`, from, to)
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
