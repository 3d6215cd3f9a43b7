package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/presence/internal/config"
	"github.com/your-org/presence/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func embeddingVector(embedding []float32) *pgvector.Vector {
	if len(embedding) == 0 {
		return nil
	}
	v := pgvector.NewVector(embedding)
	return &v
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, name, note, imageKey string, embedding []float32) (*models.User, error) {
	u := &models.User{
		ID:       uuid.New(),
		Name:     name,
		Note:     note,
		ImageKey: imageKey,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, name, note, image_key, embedding)
		 VALUES ($1, $2, $3, $4, $5) RETURNING first_seen, last_seen, created_at, updated_at`,
		u.ID, u.Name, u.Note, u.ImageKey, embeddingVector(embedding),
	).Scan(&u.FirstSeen, &u.LastSeen, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, note, image_key, first_seen, last_seen, created_at, updated_at
		 FROM users ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Note, &u.ImageKey,
			&u.FirstSeen, &u.LastSeen, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u := &models.User{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, note, image_key, first_seen, last_seen, created_at, updated_at
		 FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.Note, &u.ImageKey,
		&u.FirstSeen, &u.LastSeen, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, id uuid.UUID, name, note string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET name = $1, note = $2, updated_at = now() WHERE id = $3`,
		name, note, id)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user not found")
	}
	return nil
}

func (s *PostgresStore) UpdateUserImage(ctx context.Context, id uuid.UUID, imageKey string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET image_key = $1, updated_at = now() WHERE id = $2`,
		imageKey, id)
	if err != nil {
		return fmt.Errorf("update user image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user not found")
	}
	return nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user not found")
	}
	return nil
}

// --- Bad people ---

func (s *PostgresStore) ListBadPeople(ctx context.Context) ([]models.BadPerson, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, reason, image_key, created_at, updated_at
		 FROM bad_people ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list bad people: %w", err)
	}
	defer rows.Close()

	var people []models.BadPerson
	for rows.Next() {
		var b models.BadPerson
		if err := rows.Scan(&b.ID, &b.Name, &b.Reason, &b.ImageKey, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan bad person: %w", err)
		}
		people = append(people, b)
	}
	return people, nil
}

func (s *PostgresStore) UpdateBadPerson(ctx context.Context, id uuid.UUID, name, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bad_people SET name = $1, reason = $2, updated_at = now() WHERE id = $3`,
		name, reason, id)
	if err != nil {
		return fmt.Errorf("update bad person: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bad person not found")
	}
	return nil
}

func (s *PostgresStore) DeleteBadPerson(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM bad_people WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete bad person: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bad person not found")
	}
	return nil
}

// --- Unknown sightings ---

// Unknown rows are inserted by the detector; this service lists them for the
// resolution queue and removes them when an operator decides.

func (s *PostgresStore) ListUnknowns(ctx context.Context, limit int) ([]models.UnknownSighting, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, image_key, first_seen, last_seen
		 FROM unknowns ORDER BY first_seen DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unknowns: %w", err)
	}
	defer rows.Close()

	var sightings []models.UnknownSighting
	for rows.Next() {
		var u models.UnknownSighting
		if err := rows.Scan(&u.ID, &u.ImageKey, &u.FirstSeen, &u.LastSeen); err != nil {
			return nil, fmt.Errorf("scan unknown: %w", err)
		}
		sightings = append(sightings, u)
	}
	return sightings, nil
}

// DeleteUnknown removes an unknown sighting. The boolean reports whether the
// row still existed; deleting an already-resolved id is not an error.
func (s *PostgresStore) DeleteUnknown(ctx context.Context, unknownID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM unknowns WHERE id = $1`, unknownID)
	if err != nil {
		return false, fmt.Errorf("delete unknown: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ApproveUnknown promotes an unknown sighting into a user in one
// transaction, carrying the stored embedding and snapshot across so the
// detector recognizes the person after its next embedding reload. Returns
// found=false when the unknown no longer exists (already resolved).
func (s *PostgresStore) ApproveUnknown(ctx context.Context, unknownID, name, note string) (uuid.UUID, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("begin approve: %w", err)
	}
	defer tx.Rollback(ctx)

	var imageKey string
	var embedding *pgvector.Vector
	var firstSeen, lastSeen time.Time
	err = tx.QueryRow(ctx,
		`SELECT image_key, embedding, first_seen, last_seen FROM unknowns WHERE id = $1 FOR UPDATE`,
		unknownID,
	).Scan(&imageKey, &embedding, &firstSeen, &lastSeen)
	if err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("load unknown: %w", err)
	}

	userID := uuid.New()
	_, err = tx.Exec(ctx,
		`INSERT INTO users (id, name, note, image_key, embedding, first_seen, last_seen)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		userID, name, note, imageKey, embedding, firstSeen, lastSeen)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("insert user: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM unknowns WHERE id = $1`, unknownID); err != nil {
		return uuid.Nil, false, fmt.Errorf("delete unknown: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, false, fmt.Errorf("commit approve: %w", err)
	}
	return userID, true, nil
}

// MarkBadPerson moves an unknown sighting into the bad-people list in one
// transaction. Returns found=false when the unknown no longer exists.
func (s *PostgresStore) MarkBadPerson(ctx context.Context, unknownID, name, reason string) (uuid.UUID, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("begin mark bad: %w", err)
	}
	defer tx.Rollback(ctx)

	var imageKey string
	var embedding *pgvector.Vector
	err = tx.QueryRow(ctx,
		`SELECT image_key, embedding FROM unknowns WHERE id = $1 FOR UPDATE`,
		unknownID,
	).Scan(&imageKey, &embedding)
	if err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("load unknown: %w", err)
	}

	badID := uuid.New()
	_, err = tx.Exec(ctx,
		`INSERT INTO bad_people (id, name, reason, image_key, embedding)
		 VALUES ($1, $2, $3, $4, $5)`,
		badID, name, reason, imageKey, embedding)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("insert bad person: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM unknowns WHERE id = $1`, unknownID); err != nil {
		return uuid.Nil, false, fmt.Errorf("delete unknown: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, false, fmt.Errorf("commit mark bad: %w", err)
	}
	return badID, true, nil
}

// --- Presence events ---

// InsertPresenceEvent persists a closed presence interval. The id is
// assigned by the engine at close time, so redelivered records collapse into
// a single row.
func (s *PostgresStore) InsertPresenceEvent(ctx context.Context, ev *models.PresenceEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO presence_events (id, subject_kind, subject_id, subject_name, entry_time, exit_time, duration_seconds, snapshot_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.SubjectKind, ev.SubjectID, ev.SubjectName,
		ev.EntryTime, ev.ExitTime, ev.DurationSeconds, ev.SnapshotKey)
	if err != nil {
		return fmt.Errorf("insert presence event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPresenceEvents(ctx context.Context, limit, offset int) ([]models.PresenceEvent, int, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM presence_events`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count presence events: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, subject_kind, subject_id, subject_name, entry_time, exit_time, duration_seconds, snapshot_key, created_at
		 FROM presence_events ORDER BY entry_time DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list presence events: %w", err)
	}
	defer rows.Close()

	var events []models.PresenceEvent
	for rows.Next() {
		var ev models.PresenceEvent
		if err := rows.Scan(&ev.ID, &ev.SubjectKind, &ev.SubjectID, &ev.SubjectName,
			&ev.EntryTime, &ev.ExitTime, &ev.DurationSeconds, &ev.SnapshotKey, &ev.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan presence event: %w", err)
		}
		events = append(events, ev)
	}
	return events, total, nil
}

// --- Attendance ---

// GenerateAttendance rebuilds the attendance_logs rows for one calendar date
// from the closed presence intervals of known subjects. Re-running for the
// same date replaces the previous rollup.
func (s *PostgresStore) GenerateAttendance(ctx context.Context, date time.Time) (int, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)
	dateStr := dayStart.Format("2006-01-02")

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin attendance: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM attendance_logs WHERE date = $1`, dateStr); err != nil {
		return 0, fmt.Errorf("clear attendance: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO attendance_logs (date, subject_id, subject_name, total_duration_seconds, first_seen, last_seen)
		 SELECT $1, subject_id, MAX(subject_name), SUM(duration_seconds), MIN(entry_time), MAX(exit_time)
		 FROM presence_events
		 WHERE subject_kind = 'known' AND entry_time >= $2 AND entry_time < $3
		 GROUP BY subject_id`,
		dateStr, dayStart, dayEnd)
	if err != nil {
		return 0, fmt.Errorf("aggregate attendance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit attendance: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// RollupRow is one subject's attendance for a date. TotalDurationSeconds is
// nil for users with no closed interval that day; callers must keep nil
// distinct from zero.
type RollupRow struct {
	SubjectID            string     `json:"subject_id"`
	SubjectName          string     `json:"subject_name"`
	TotalDurationSeconds *float64   `json:"total_duration_seconds"`
	FirstSeen            *time.Time `json:"first_seen,omitempty"`
	LastSeen             *time.Time `json:"last_seen,omitempty"`
}

// AttendanceRollup returns one row per registered user for the given date,
// absent users included with a nil total.
func (s *PostgresStore) AttendanceRollup(ctx context.Context, date time.Time) ([]RollupRow, error) {
	dateStr := date.Format("2006-01-02")
	rows, err := s.pool.Query(ctx,
		`SELECT u.id::text, u.name, a.total_duration_seconds, a.first_seen, a.last_seen
		 FROM users u
		 LEFT JOIN attendance_logs a ON a.subject_id = u.id::text AND a.date = $1
		 ORDER BY u.name`, dateStr)
	if err != nil {
		return nil, fmt.Errorf("attendance rollup: %w", err)
	}
	defer rows.Close()

	var out []RollupRow
	for rows.Next() {
		var r RollupRow
		if err := rows.Scan(&r.SubjectID, &r.SubjectName, &r.TotalDurationSeconds, &r.FirstSeen, &r.LastSeen); err != nil {
			return nil, fmt.Errorf("scan rollup row: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}
