package repository

import (
	"context"

	"github.com/spec-kit/account-service/internal/domain"
)

// UserRepository is the credential store and follow graph.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// FindByLogin matches every non-empty identifier against the same row.
	FindByLogin(ctx context.Context, username, email string) (*domain.User, error)
	ListSuggested(ctx context.Context, userID string, limit int) ([]domain.User, error)
	// Follow adds the edge and reports false when it already existed.
	Follow(ctx context.Context, followerID, followeeID string) (bool, error)
	// Unfollow removes the edge and reports false when there was none.
	Unfollow(ctx context.Context, followerID, followeeID string) (bool, error)
}

type userRepository struct {
	db DB
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(db DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `
        u.id::text, u.username, u.email, u.password_hash, u.bio, u.profile_picture,
        ARRAY(SELECT f.follower_id::text FROM user_follows f WHERE f.followee_id = u.id ORDER BY f.created_at),
        ARRAY(SELECT f.followee_id::text FROM user_follows f WHERE f.follower_id = u.id ORDER BY f.created_at),
        u.created_at, u.updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Bio,
		&user.ProfilePicture,
		&user.Followers,
		&user.Following,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (username, email, password_hash, bio, profile_picture)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id::text, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Bio,
		user.ProfilePicture,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	return translate(err)
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	const query = `
        UPDATE users SET username=$1, password_hash=$2, bio=$3, profile_picture=$4, updated_at=NOW()
        WHERE id=$5
        RETURNING updated_at`

	return translate(r.db.QueryRow(ctx, query,
		user.Username,
		user.PasswordHash,
		user.Bio,
		user.ProfilePicture,
		user.ID,
	).Scan(&user.UpdatedAt))
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT`+userColumns+` FROM users u WHERE u.id=$1`, id))
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT`+userColumns+` FROM users u WHERE u.username=$1`, username))
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT`+userColumns+` FROM users u WHERE u.email=$1`, email))
}

func (r *userRepository) FindByLogin(ctx context.Context, username, email string) (*domain.User, error) {
	if username == "" && email == "" {
		return nil, ErrNotFound
	}
	const where = ` FROM users u WHERE ($1 = '' OR u.username = $1) AND ($2 = '' OR u.email = $2)`
	return scanUser(r.db.QueryRow(ctx, `SELECT`+userColumns+where, username, email))
}

func (r *userRepository) ListSuggested(ctx context.Context, userID string, limit int) ([]domain.User, error) {
	const where = `
        FROM users u
        WHERE u.id <> $1
          AND NOT EXISTS (SELECT 1 FROM user_follows f WHERE f.follower_id = $1 AND f.followee_id = u.id)
        ORDER BY u.created_at DESC
        LIMIT $2`

	rows, err := r.db.Query(ctx, `SELECT`+userColumns+where, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *user)
	}
	return result, rows.Err()
}

func (r *userRepository) Follow(ctx context.Context, followerID, followeeID string) (bool, error) {
	const query = `
        INSERT INTO user_follows (follower_id, followee_id)
        VALUES ($1, $2)
        ON CONFLICT DO NOTHING`

	cmd, err := r.db.Exec(ctx, query, followerID, followeeID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *userRepository) Unfollow(ctx context.Context, followerID, followeeID string) (bool, error) {
	const query = `DELETE FROM user_follows WHERE follower_id=$1 AND followee_id=$2`

	cmd, err := r.db.Exec(ctx, query, followerID, followeeID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}
