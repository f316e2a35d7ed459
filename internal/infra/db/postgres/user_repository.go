package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	domainuser "tripnest/internal/domain/user"
)

type UserRepository struct {
	tx *gorm.DB
}

// NewUserRepository builds a repository outside any transaction, for callers
// like the auth service that read users on their own.
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{tx: db}
}

func (r *UserRepository) ByID(ctx context.Context, id domainuser.ID) (*domainuser.User, error) {
	var row userRow
	err := r.tx.WithContext(ctx).Where("id = ?", string(id)).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainuser.ErrNotFound
		}
		return nil, err
	}
	return rowToUser(row), nil
}

func (r *UserRepository) ByEmail(ctx context.Context, email string) (*domainuser.User, error) {
	var row userRow
	err := r.tx.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainuser.ErrNotFound
		}
		return nil, err
	}
	return rowToUser(row), nil
}

func (r *UserRepository) Save(ctx context.Context, u *domainuser.User) error {
	row := userToRow(u)
	err := r.tx.WithContext(ctx).Save(&row).Error
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domainuser.ErrEmailAlreadyUsed
		}
		return err
	}
	return nil
}

func rowToUser(r userRow) *domainuser.User {
	var roles []domainuser.Role
	if r.Roles != "" {
		for _, role := range strings.Split(r.Roles, ",") {
			roles = append(roles, domainuser.Role(role))
		}
	}
	return &domainuser.User{
		ID:           domainuser.ID(r.ID),
		Email:        r.Email,
		Name:         r.Name,
		PasswordHash: r.PasswordHash,
		Roles:        roles,
		Erased:       r.Erased,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

var _ domainuser.Repository = (*UserRepository)(nil)
