package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 4

// Registration carries the fields accepted when signing up.
type Registration struct {
	Phone      string
	Password   string
	Nickname   string
	Department string
}

// ProfileUpdate carries optional profile changes; nil fields are kept.
type ProfileUpdate struct {
	Nickname   *string
	AvatarURL  *string
	Department *string
}

// Register creates a user. The first account becomes the super admin; later
// accounts start as plain users. The department must be one of the site's
// departments when that list is non-empty.
func (s *Store) Register(ctx context.Context, reg Registration) (User, error) {
	reg.Phone = strings.TrimSpace(reg.Phone)
	reg.Department = strings.TrimSpace(reg.Department)
	if reg.Phone == "" {
		return User{}, fmt.Errorf("%w: phone is required", ErrInvalid)
	}
	if len(reg.Password) < minPasswordLength {
		return User{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalid, minPasswordLength)
	}
	if reg.Department == "" {
		return User{}, fmt.Errorf("%w: department is required", ErrInvalid)
	}
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return User{}, err
	}
	if len(settings.Departments) > 0 && !slices.Contains(settings.Departments, reg.Department) {
		return User{}, fmt.Errorf("%w: unknown department %q", ErrInvalid, reg.Department)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	user := User{
		Phone:      reg.Phone,
		Nickname:   strings.TrimSpace(reg.Nickname),
		Department: reg.Department,
		Role:       RoleUser,
		CreatedAt:  time.UnixMilli(time.Now().UnixMilli()).UTC(),
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM users`).Scan(&count); err != nil {
			return fmt.Errorf("count users: %w", err)
		}
		if count == 0 {
			user.Role = RoleSuperAdmin
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (phone, nickname, avatar_url, department, role, password_hash, created_at)
			VALUES (?, ?, '', ?, ?, ?, ?)`,
			user.Phone, user.Nickname, user.Department, string(user.Role), string(hash), user.CreatedAt.UnixMilli(),
		)
		if err != nil {
			if isConstraintError(err) {
				return fmt.Errorf("%w: phone %q is already registered", ErrConflict, user.Phone)
			}
			return fmt.Errorf("insert user: %w", err)
		}
		return nil
	})
	if err != nil {
		return User{}, err
	}
	s.publish(EventUsers)
	return user, nil
}

// Authenticate checks a phone/password pair.
func (s *Store) Authenticate(ctx context.Context, phone, password string) (User, error) {
	user, hash, err := s.getUserWithHash(ctx, strings.TrimSpace(phone))
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// ChangePassword replaces a user's password after verifying the current one.
func (s *Store) ChangePassword(ctx context.Context, phone, current, next string) error {
	if _, err := s.Authenticate(ctx, phone, current); err != nil {
		return err
	}
	if len(next) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalid, minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE phone = ?`, string(hash), strings.TrimSpace(phone)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// GetUser fetches a user by phone.
func (s *Store) GetUser(ctx context.Context, phone string) (User, error) {
	user, _, err := s.getUserWithHash(ctx, phone)
	return user, err
}

// ListUsers returns every user in registration order.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT phone, nickname, avatar_url, department, role, created_at FROM users ORDER BY created_at, phone`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var (
			u       User
			role    string
			created int64
		)
		if err := rows.Scan(&u.Phone, &u.Nickname, &u.AvatarURL, &u.Department, &role, &created); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Role = Role(role)
		u.CreatedAt = time.UnixMilli(created).UTC()
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateProfile applies the non-nil fields of update.
func (s *Store) UpdateProfile(ctx context.Context, phone string, update ProfileUpdate) (User, error) {
	user, err := s.GetUser(ctx, phone)
	if err != nil {
		return User{}, err
	}
	if update.Nickname != nil {
		user.Nickname = strings.TrimSpace(*update.Nickname)
	}
	if update.AvatarURL != nil {
		user.AvatarURL = strings.TrimSpace(*update.AvatarURL)
	}
	if update.Department != nil {
		department := strings.TrimSpace(*update.Department)
		if department == "" {
			return User{}, fmt.Errorf("%w: department is required", ErrInvalid)
		}
		settings, err := s.GetSettings(ctx)
		if err != nil {
			return User{}, err
		}
		if len(settings.Departments) > 0 && !slices.Contains(settings.Departments, department) {
			return User{}, fmt.Errorf("%w: unknown department %q", ErrInvalid, department)
		}
		user.Department = department
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE users SET nickname = ?, avatar_url = ?, department = ? WHERE phone = ?`,
		user.Nickname, user.AvatarURL, user.Department, user.Phone,
	); err != nil {
		return User{}, fmt.Errorf("update profile: %w", err)
	}
	s.publish(EventUsers)
	return user, nil
}

// SetRole changes a user's role. The last super admin cannot be demoted.
func (s *Store) SetRole(ctx context.Context, phone string, role Role) (User, error) {
	if !role.Valid() {
		return User{}, fmt.Errorf("%w: unknown role %q", ErrInvalid, role)
	}
	var user User
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, _, err := getUserWithHash(ctx, tx, phone)
		if err != nil {
			return err
		}
		if current.Role == RoleSuperAdmin && role != RoleSuperAdmin {
			var supers int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE role = ?`, string(RoleSuperAdmin)).Scan(&supers); err != nil {
				return fmt.Errorf("count super admins: %w", err)
			}
			if supers <= 1 {
				return ErrLastSuperAdmin
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE users SET role = ? WHERE phone = ?`, string(role), current.Phone); err != nil {
			return fmt.Errorf("update role: %w", err)
		}
		current.Role = role
		user = current
		return nil
	})
	if err != nil {
		return User{}, err
	}
	s.publish(EventUsers)
	return user, nil
}

func (s *Store) getUserWithHash(ctx context.Context, phone string) (User, string, error) {
	return getUserWithHash(ctx, s.db, phone)
}

func getUserWithHash(ctx context.Context, q queryer, phone string) (User, string, error) {
	var (
		u       User
		role    string
		hash    string
		created int64
	)
	err := q.QueryRowContext(ctx,
		`SELECT phone, nickname, avatar_url, department, role, password_hash, created_at FROM users WHERE phone = ?`,
		phone,
	).Scan(&u.Phone, &u.Nickname, &u.AvatarURL, &u.Department, &role, &hash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, "", fmt.Errorf("%w: user %q", ErrNotFound, phone)
	}
	if err != nil {
		return User{}, "", fmt.Errorf("get user: %w", err)
	}
	u.Role = Role(role)
	u.CreatedAt = time.UnixMilli(created).UTC()
	return u, hash, nil
}
