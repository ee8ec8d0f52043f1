package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/clinicore/scheduling-engine/internal/db"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

func main() {
	logger.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	facilityIDs, err := seedFacilities(context.Background(), pool, 5)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed facilities")
	}
	doctorIDs, err := seedDoctors(context.Background(), pool, facilityIDs, 50)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}
	if err := seedAvailabilityRules(context.Background(), pool, doctorIDs); err != nil {
		logger.Fatal().Err(err).Msg("seed availability rules")
	}
	if err := seedWaitingList(context.Background(), pool, facilityIDs, 200); err != nil {
		logger.Fatal().Err(err).Msg("seed waiting list")
	}

	logger.Info().Msg("seed complete")
}

func seedFacilities(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	logger.Info().Int("count", count).Msg("seeding facilities")

	ids := make([]uuid.UUID, 0, count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Company() + " Clinic"

		_, err := tx.Exec(ctx, `
			INSERT INTO facilities (id, name, created_at, updated_at)
			VALUES ($1, $2, now(), now())
		`, id, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	logger.Info().Msg("facilities seeded")
	return ids, nil
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, facilityIDs []uuid.UUID, count int) ([][2]uuid.UUID, error) {
	logger.Info().Int("count", count).Msg("seeding doctors")

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	// pairs of (doctor, facility) for rule seeding
	pairs := make([][2]uuid.UUID, 0, count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		facilityID := facilityIDs[gofakeit.Number(0, len(facilityIDs)-1)]
		name := "Dr. " + gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, facility_id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, facilityID, name, spec)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, [2]uuid.UUID{id, facilityID})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	logger.Info().Msg("doctors seeded")
	return pairs, nil
}

func seedAvailabilityRules(ctx context.Context, pool *pgxpool.Pool, pairs [][2]uuid.UUID) error {
	logger.Info().Int("doctors", len(pairs)).Msg("seeding availability rules")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, pair := range pairs {
		doctorID, facilityID := pair[0], pair[1]

		// Weekday mornings or full days, Monday through Friday.
		startMinute := 8 * 60
		endMinute := 12 * 60
		if gofakeit.Bool() {
			endMinute = 17 * 60
		}
		buffer := []int{0, 0, 5, 10}[gofakeit.Number(0, 3)]

		for dow := 1; dow <= 5; dow++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO availability_rules
					(id, doctor_id, facility_id, kind, day_of_week, start_minute, end_minute, is_available, buffer_minutes, created_at, updated_at)
				VALUES ($1, $2, $3, 'regular', $4, $5, $6, true, $7, now(), now())
			`, uuid.New(), doctorID, facilityID, dow, startMinute, endMinute, buffer)
			if err != nil {
				return err
			}
		}

		// Occasional lunch block on Wednesdays next week.
		if gofakeit.Number(0, 3) == 0 {
			nextWednesday := upcoming(time.Wednesday)
			_, err := tx.Exec(ctx, `
				INSERT INTO availability_rules
					(id, doctor_id, facility_id, kind, date, start_minute, end_minute, is_available, buffer_minutes, created_at, updated_at)
				VALUES ($1, $2, $3, 'blocked', $4, $5, $6, false, 0, now(), now())
			`, uuid.New(), doctorID, facilityID, nextWednesday, 12*60, 13*60)
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info().Msg("availability rules seeded")
	return nil
}

func seedWaitingList(ctx context.Context, pool *pgxpool.Pool, facilityIDs []uuid.UUID, count int) error {
	logger.Info().Int("count", count).Msg("seeding waiting list entries")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	positions := make(map[uuid.UUID]int)

	for i := 0; i < count; i++ {
		facilityID := facilityIDs[gofakeit.Number(0, len(facilityIDs)-1)]
		positions[facilityID]++

		_, err := tx.Exec(ctx, `
			INSERT INTO waiting_list_entries
				(id, facility_id, patient_name, patient_phone, patient_email, position, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, 'active', now(), now())
		`, uuid.New(), facilityID, gofakeit.Name(), gofakeit.Phone(), gofakeit.Email(), positions[facilityID])
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info().Msg("waiting list entries seeded")
	return nil
}

func upcoming(day time.Weekday) time.Time {
	t := time.Now().AddDate(0, 0, 1)
	for t.Weekday() != day {
		t = t.AddDate(0, 0, 1)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
