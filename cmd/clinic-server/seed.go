package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/clinicore/api/internal/config"
	"github.com/clinicore/api/internal/domain/planner"
	"github.com/clinicore/api/internal/platform/auth"
	"github.com/clinicore/api/internal/platform/db"
)

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the database with development fixtures",
		RunE: func(cmd *cobra.Command, args []string) error {
			patients, _ := cmd.Flags().GetInt("patients")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			gofakeit.Seed(time.Now().UnixNano())

			staffID, err := seedUsers(ctx, pool, patients)
			if err != nil {
				return fmt.Errorf("seed users: %w", err)
			}
			if err := seedPlannerItems(ctx, pool, staffID, cfg.ClinicLocation(), cfg.ClinicOpenHour); err != nil {
				return fmt.Errorf("seed planner items: %w", err)
			}

			fmt.Printf("Seeded %d patients, 1 staff member, and sample planner entries.\n", patients)
			return nil
		},
	}
	cmd.Flags().Int("patients", 50, "Number of patient users to create")
	return cmd
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, patients int) (uuid.UUID, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	defer tx.Rollback(ctx)

	staffID := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO users (id, full_name, email, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO NOTHING`,
		staffID, "Recepción Clínica", "recepcion@clinic.local", auth.RoleStaff)
	if err != nil {
		return uuid.Nil, err
	}

	for i := 0; i < patients; i++ {
		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, full_name, email, role)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (email) DO NOTHING`,
			uuid.New(), gofakeit.Name(), gofakeit.Email(), auth.RoleRequester)
		if err != nil {
			return uuid.Nil, err
		}
	}

	return staffID, tx.Commit(ctx)
}

// seedPlannerItems adds a lunch block and a sample event on the next
// weekday so the agenda view has something to show out of the box.
func seedPlannerItems(ctx context.Context, pool *pgxpool.Pool, staffID uuid.UUID, loc *time.Location, openHour int) error {
	day := time.Now().In(loc).AddDate(0, 0, 1)
	for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, 1)
	}
	open := time.Date(day.Year(), day.Month(), day.Day(), openHour, 0, 0, 0, loc)

	items := []struct {
		kind, title string
		start, end  time.Time
	}{
		{planner.KindBlock, "Reunión de personal", open, open.Add(time.Hour)},
		{planner.KindEvent, "Inventario de suministros", open.Add(2 * time.Hour), open.Add(3 * time.Hour)},
	}

	for _, it := range items {
		_, err := pool.Exec(ctx, `
			INSERT INTO planner_items (id, kind, title, start_at, end_at, all_day, created_by)
			VALUES ($1, $2, $3, $4, $5, false, $6)`,
			uuid.New(), it.kind, it.title, it.start, it.end, staffID)
		if err != nil {
			return err
		}
	}
	return nil
}
