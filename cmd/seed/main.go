package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicops/clinic-scheduling/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.ApplySchema(context.Background(), pool); err != nil {
		log.Fatalf("apply schema: %v", err)
	}
	log.Println("schema applied")

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedWeeklySchedule(context.Background(), pool); err != nil {
		log.Fatalf("seed weekly schedule: %v", err)
	}
	if err := seedVacation(context.Background(), pool); err != nil {
		log.Fatalf("seed vacation: %v", err)
	}

	log.Println("seed complete")
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}

// seedWeeklySchedule opens Monday through Friday 09:00-17:00 with a
// 13:00-14:00 lunch break.
func seedWeeklySchedule(ctx context.Context, pool *pgxpool.Pool) error {
	log.Println("seeding weekly schedule")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for day := 1; day <= 5; day++ {
		_, err := tx.Exec(ctx, `
			INSERT INTO weekly_schedules (id, day_of_week, start_time, end_time, break_start, break_end, is_active, created_at, updated_at)
			VALUES ($1, $2, '09:00', '17:00', '13:00', '14:00', true, now(), now())
			ON CONFLICT DO NOTHING
		`, uuid.New(), day)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("weekly schedule seeded")
	return nil
}

func seedVacation(ctx context.Context, pool *pgxpool.Pool) error {
	log.Println("seeding vacation")

	start := time.Now().AddDate(0, 2, 0)
	end := start.AddDate(0, 0, 6)

	_, err := pool.Exec(ctx, `
		INSERT INTO vacations (id, title, reason, start_date, end_date, created_at, updated_at)
		VALUES ($1, 'Summer break', 'Annual clinic closure', $2, $3, now(), now())
	`, uuid.New(), start, end)
	if err != nil {
		return err
	}

	log.Println("vacation seeded")
	return nil
}
