package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"github.com/vitalsd/vitalsd/internal/model"
	"github.com/vitalsd/vitalsd/internal/store"
)

// Open opens a PostgreSQL connection using the pgx stdlib driver and verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewWithDB constructs a native Postgres store backed directly by database/sql.
func NewWithDB(db *sql.DB) store.Store { return &pgStore{db: db} }

type pgStore struct{ db *sql.DB }

func (s *pgStore) Users() store.Users                 { return &users{db: s.db} }
func (s *pgStore) Credentials() store.Credentials     { return &credentials{db: s.db} }
func (s *pgStore) RawIngestions() store.RawIngestions { return &rawIngestions{db: s.db} }
func (s *pgStore) Metrics() store.Metrics             { return &metrics{db: s.db} }
func (s *pgStore) Queries() store.Queries             { return &queries{db: s.db} }

// HealthPing implements health.HealthPinger for the Postgres-backed store.
func (s *pgStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	return err
}

// --- Users ---
type users struct{ db *sql.DB }

func (u *users) Create(ctx context.Context, m *model.User) (*model.User, error) {
	id := m.ID
	if id == "" {
		id = uuid.New().String()
	}
	var created, updated time.Time
	row := u.db.QueryRowContext(ctx, `
        INSERT INTO users (id, email, name, is_active)
        VALUES ($1,$2,$3,true)
        RETURNING created_at, updated_at
    `, id, m.Email, m.Name)
	if err := row.Scan(&created, &updated); err != nil {
		return nil, err
	}
	out := *m
	out.ID = id
	out.IsActive = true
	out.CreatedAt = created
	out.UpdatedAt = updated
	return &out, nil
}

func (u *users) Get(ctx context.Context, userID string) (*model.User, error) {
	var out model.User
	row := u.db.QueryRowContext(ctx, `
        SELECT id, email, name, is_active, created_at, updated_at
        FROM users WHERE id=$1
    `, userID)
	if err := row.Scan(&out.ID, &out.Email, &out.Name, &out.IsActive, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, mapNoRows(err)
	}
	return &out, nil
}

func (u *users) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var out model.User
	row := u.db.QueryRowContext(ctx, `
        SELECT id, email, name, is_active, created_at, updated_at
        FROM users WHERE email=$1
    `, email)
	if err := row.Scan(&out.ID, &out.Email, &out.Name, &out.IsActive, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, mapNoRows(err)
	}
	return &out, nil
}

// --- Credentials ---
type credentials struct{ db *sql.DB }

func (c *credentials) Create(ctx context.Context, m *model.Credential) (*model.Credential, error) {
	id := m.ID
	if id == "" {
		id = uuid.New().String()
	}
	var created time.Time
	row := c.db.QueryRowContext(ctx, `
        INSERT INTO api_credentials (id, user_id, name, key_hash, scopes, rate_limit_per_hour, is_active, expires_at)
        VALUES ($1,$2,$3,$4,$5,$6,true,$7)
        RETURNING created_at
    `, id, m.UserID, m.Name, m.KeyHash, pq.Array(m.Scopes), m.RateLimitPerHr, m.ExpiresAt)
	if err := row.Scan(&created); err != nil {
		return nil, err
	}
	out := *m
	out.ID = id
	out.IsActive = true
	out.CreatedAt = created
	return &out, nil
}

func (c *credentials) GetByID(ctx context.Context, credentialID string) (*model.Credential, error) {
	row := c.db.QueryRowContext(ctx, `
        SELECT id, user_id, name, key_hash, scopes, rate_limit_per_hour, is_active, expires_at, last_used_at, created_at
        FROM api_credentials WHERE id=$1
    `, credentialID)
	return scanCredential(row)
}

func (c *credentials) ListActive(ctx context.Context) ([]*model.Credential, error) {
	rows, err := c.db.QueryContext(ctx, `
        SELECT id, user_id, name, key_hash, scopes, rate_limit_per_hour, is_active, expires_at, last_used_at, created_at
        FROM api_credentials
        WHERE is_active AND (expires_at IS NULL OR expires_at > now())
    `)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cred)
	}
	return out, rows.Err()
}

func (c *credentials) TouchLastUsed(ctx context.Context, credentialID string, at time.Time) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE api_credentials SET last_used_at=$2 WHERE id=$1`, credentialID, at)
	return err
}

func (c *credentials) Deactivate(ctx context.Context, credentialID string) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE api_credentials SET is_active=false WHERE id=$1`, credentialID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

type rowScanner interface{ Scan(dest ...any) error }

func scanCredential(r rowScanner) (*model.Credential, error) {
	var out model.Credential
	var scopes pq.StringArray
	if err := r.Scan(&out.ID, &out.UserID, &out.Name, &out.KeyHash, &scopes,
		&out.RateLimitPerHr, &out.IsActive, &out.ExpiresAt, &out.LastUsedAt, &out.CreatedAt); err != nil {
		return nil, mapNoRows(err)
	}
	out.Scopes = scopes
	return &out, nil
}

// --- Raw ingestions ---
type rawIngestions struct{ db *sql.DB }

func (r *rawIngestions) Create(ctx context.Context, m *model.RawIngestion) (*model.RawIngestion, error) {
	id := m.ID
	if id == "" {
		id = uuid.New().String()
	}
	status := m.ProcessingStatus
	if status == "" {
		status = model.StatusReceived
	}
	var received time.Time
	row := r.db.QueryRowContext(ctx, `
        INSERT INTO raw_ingestions (id, user_id, payload_hash, payload_size_bytes, raw_payload, processing_status)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING received_at
    `, id, m.UserID, m.PayloadHash, m.PayloadSizeBytes, m.RawPayload, status)
	if err := row.Scan(&received); err != nil {
		return nil, err
	}
	out := *m
	out.ID = id
	out.ProcessingStatus = status
	out.ReceivedAt = received
	return &out, nil
}

func (r *rawIngestions) Get(ctx context.Context, id string) (*model.RawIngestion, error) {
	var out model.RawIngestion
	row := r.db.QueryRowContext(ctx, `
        SELECT id, user_id, payload_hash, payload_size_bytes, raw_payload, processing_status, processing_errors, received_at, processed_at
        FROM raw_ingestions WHERE id=$1
    `, id)
	if err := row.Scan(&out.ID, &out.UserID, &out.PayloadHash, &out.PayloadSizeBytes,
		&out.RawPayload, &out.ProcessingStatus, &out.ProcessingErrors, &out.ReceivedAt, &out.ProcessedAt); err != nil {
		return nil, mapNoRows(err)
	}
	return &out, nil
}

func (r *rawIngestions) FindRecentByHash(ctx context.Context, userID, payloadHash string, window time.Duration) (*model.RawIngestion, error) {
	var out model.RawIngestion
	row := r.db.QueryRowContext(ctx, `
        SELECT id, user_id, payload_hash, payload_size_bytes, raw_payload, processing_status, processing_errors, received_at, processed_at
        FROM raw_ingestions
        WHERE user_id=$1 AND payload_hash=$2 AND received_at > now() - $3::interval
        ORDER BY received_at DESC
        LIMIT 1
    `, userID, payloadHash, fmt.Sprintf("%d seconds", int64(window.Seconds())))
	if err := row.Scan(&out.ID, &out.UserID, &out.PayloadHash, &out.PayloadSizeBytes,
		&out.RawPayload, &out.ProcessingStatus, &out.ProcessingErrors, &out.ReceivedAt, &out.ProcessedAt); err != nil {
		return nil, mapNoRows(err)
	}
	return &out, nil
}

func (r *rawIngestions) UpdateStatus(ctx context.Context, id, status string, processingErrors *string) error {
	cur, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if !model.StatusAdvances(cur.ProcessingStatus, status) {
		return fmt.Errorf("%w: status %s cannot follow %s", model.ErrConflict, status, cur.ProcessingStatus)
	}
	var processedAt *time.Time
	if status == model.StatusProcessed || status == model.StatusPartialSuccess || status == model.StatusError {
		now := time.Now().UTC()
		processedAt = &now
	}
	res, err := r.db.ExecContext(ctx, `
        UPDATE raw_ingestions
        SET processing_status=$2, processing_errors=COALESCE($3, processing_errors), processed_at=COALESCE($4, processed_at)
        WHERE id=$1
    `, id, status, processingErrors, processedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}
