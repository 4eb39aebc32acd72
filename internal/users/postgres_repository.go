package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// DB is the subset of pgxpool.Pool used by PostgresRepository.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresRepository implements Repository over the users, patients and
// psychologists tables.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository creates a repository backed by a pgx pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("users: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

// NewPostgresRepositoryWithDB allows injecting a mock database for testing.
func NewPostgresRepositoryWithDB(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `u.id, u.role, u.full_name, u.email, u.phone, u.password_hash, u.active, u.created_at`

const insertUserSQL = `
	INSERT INTO users (id, role, full_name, email, phone, password_hash, active)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING created_at
`

func insertUser(ctx context.Context, tx pgx.Tx, user *User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.Email = normalizeEmail(user.Email)
	err := tx.QueryRow(ctx, insertUserSQL,
		user.ID, string(user.Role), user.FullName, user.Email, user.Phone, user.PasswordHash, user.Active,
	).Scan(&user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("users: insert user: %w", err)
	}
	return nil
}

// createWithExtension inserts the user and its role row in one transaction.
func (r *PostgresRepository) createWithExtension(ctx context.Context, user *User, extensionSQL string) (uuid.UUID, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("users: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := insertUser(ctx, tx, user); err != nil {
		return uuid.Nil, err
	}
	extID := uuid.New()
	if extensionSQL != "" {
		if _, err := tx.Exec(ctx, extensionSQL, extID, user.ID); err != nil {
			return uuid.Nil, fmt.Errorf("users: insert %s: %w", user.Role, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("users: commit: %w", err)
	}
	return extID, nil
}

func (r *PostgresRepository) CreatePatient(ctx context.Context, user User) (*Patient, error) {
	user.Role = RolePatient
	id, err := r.createWithExtension(ctx, &user, `INSERT INTO patients (id, user_id) VALUES ($1, $2)`)
	if err != nil {
		return nil, err
	}
	return &Patient{ID: id, User: user}, nil
}

func (r *PostgresRepository) CreatePsychologist(ctx context.Context, user User) (*Psychologist, error) {
	user.Role = RolePsychologist
	id, err := r.createWithExtension(ctx, &user, `INSERT INTO psychologists (id, user_id) VALUES ($1, $2)`)
	if err != nil {
		return nil, err
	}
	return &Psychologist{ID: id, User: user}, nil
}

func (r *PostgresRepository) CreateAdmin(ctx context.Context, user User) (*User, error) {
	user.Role = RoleAdmin
	if _, err := r.createWithExtension(ctx, &user, ""); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *PostgresRepository) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, wrapNotFound("get user", err)
	}
	return u, nil
}

func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users u WHERE u.email = $1`, normalizeEmail(email))
	u, err := scanUser(row)
	if err != nil {
		return nil, wrapNotFound("get user by email", err)
	}
	return u, nil
}

func (r *PostgresRepository) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `SELECT p.id, `+userColumns+` FROM patients p JOIN users u ON u.id = p.user_id WHERE p.id = $1`, id)
	var p Patient
	if err := scanWithID(row, &p.ID, &p.User); err != nil {
		return nil, wrapNotFound("get patient", err)
	}
	return &p, nil
}

func (r *PostgresRepository) GetPsychologist(ctx context.Context, id uuid.UUID) (*Psychologist, error) {
	row := r.db.QueryRow(ctx, `SELECT p.id, `+userColumns+` FROM psychologists p JOIN users u ON u.id = p.user_id WHERE p.id = $1`, id)
	var p Psychologist
	if err := scanWithID(row, &p.ID, &p.User); err != nil {
		return nil, wrapNotFound("get psychologist", err)
	}
	return &p, nil
}

func (r *PostgresRepository) PatientForUser(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `SELECT p.id, `+userColumns+` FROM patients p JOIN users u ON u.id = p.user_id WHERE p.user_id = $1`, userID)
	var p Patient
	if err := scanWithID(row, &p.ID, &p.User); err != nil {
		return nil, wrapNotFound("patient for user", err)
	}
	return &p, nil
}

func (r *PostgresRepository) PsychologistForUser(ctx context.Context, userID uuid.UUID) (*Psychologist, error) {
	row := r.db.QueryRow(ctx, `SELECT p.id, `+userColumns+` FROM psychologists p JOIN users u ON u.id = p.user_id WHERE p.user_id = $1`, userID)
	var p Psychologist
	if err := scanWithID(row, &p.ID, &p.User); err != nil {
		return nil, wrapNotFound("psychologist for user", err)
	}
	return &p, nil
}

const listFilterSQL = `
	WHERE ($1 = '' OR u.full_name ILIKE '%' || $1 || '%')
	  AND ($2 = '' OR u.email ILIKE '%' || $2 || '%')
	  AND ($3 = '' OR u.phone ILIKE '%' || $3 || '%')
	ORDER BY u.full_name, p.id
`

func (r *PostgresRepository) ListPatients(ctx context.Context, filter ListFilter) ([]Patient, error) {
	rows, err := r.db.Query(ctx, `SELECT p.id, `+userColumns+` FROM patients p JOIN users u ON u.id = p.user_id`+listFilterSQL,
		filter.Name, filter.Email, filter.Phone)
	if err != nil {
		return nil, fmt.Errorf("users: list patients: %w", err)
	}
	defer rows.Close()

	out := []Patient{}
	for rows.Next() {
		var p Patient
		if err := scanWithID(rows, &p.ID, &p.User); err != nil {
			return nil, fmt.Errorf("users: scan patient: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ListPsychologists(ctx context.Context, filter ListFilter) ([]Psychologist, error) {
	rows, err := r.db.Query(ctx, `SELECT p.id, `+userColumns+` FROM psychologists p JOIN users u ON u.id = p.user_id`+listFilterSQL,
		filter.Name, filter.Email, filter.Phone)
	if err != nil {
		return nil, fmt.Errorf("users: list psychologists: %w", err)
	}
	defer rows.Close()

	out := []Psychologist{}
	for rows.Next() {
		var p Psychologist
		if err := scanWithID(rows, &p.ID, &p.User); err != nil {
			return nil, fmt.Errorf("users: scan psychologist: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CountByRole(ctx context.Context, role Role) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE role = $1`, string(role)).Scan(&n); err != nil {
		return 0, fmt.Errorf("users: count %s: %w", role, err)
	}
	return n, nil
}

func (r *PostgresRepository) UpdateUser(ctx context.Context, user User) error {
	query := `
		UPDATE users
		SET full_name = $2, email = $3, phone = $4,
		    password_hash = COALESCE(NULLIF($5, ''), password_hash)
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, user.ID, user.FullName, normalizeEmail(user.Email), user.Phone, user.PasswordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("users: update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("users: set active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*User, error) {
	var u User
	var role string
	if err := row.Scan(&u.ID, &role, &u.FullName, &u.Email, &u.Phone, &u.PasswordHash, &u.Active, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Role = Role(role)
	return &u, nil
}

func scanWithID(row scanner, id *uuid.UUID, u *User) error {
	var role string
	if err := row.Scan(id, &u.ID, &role, &u.FullName, &u.Email, &u.Phone, &u.PasswordHash, &u.Active, &u.CreatedAt); err != nil {
		return err
	}
	u.Role = Role(role)
	return nil
}

func wrapNotFound(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("users: %s: %w", op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
