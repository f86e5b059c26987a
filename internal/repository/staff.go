package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
)

const staffColumns = `id, username, password_hash, full_name, email, role, business_id, is_active, created_at, version`

func scanStaff(row interface{ Scan(...any) error }) (*domain.Staff, error) {
	staff := &domain.Staff{}
	dst := []any{&staff.ID, &staff.Username, &staff.PasswordHash, &staff.FullName, &staff.Email, &staff.Role, &staff.BusinessID, &staff.IsActive, &staff.CreatedAt, &staff.Version}
	if err := row.Scan(dst...); err != nil {
		return nil, err
	}
	return staff, nil
}

// GetStaffByID 员工不存在时返回 (nil, nil)
func (r *Repository) GetStaffByID(ctx context.Context, id int64) (*domain.Staff, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	staff, err := scanStaff(r.dbpool.QueryRowContext(ctx, `SELECT `+staffColumns+` FROM staff WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return staff, err
}

// GetStaffByUsername 员工不存在时返回 (nil, nil)
func (r *Repository) GetStaffByUsername(ctx context.Context, username string) (*domain.Staff, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	staff, err := scanStaff(r.dbpool.QueryRowContext(ctx, `SELECT `+staffColumns+` FROM staff WHERE username = $1`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return staff, err
}

func (r *Repository) CreateStaff(ctx context.Context, staff *domain.Staff) error {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	query := `
		INSERT INTO staff (username, password_hash, full_name, email, role, business_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, is_active, created_at, version
	`

	args := []any{staff.Username, staff.PasswordHash, staff.FullName, staff.Email, staff.Role, staff.BusinessID}
	if err := r.dbpool.QueryRowContext(ctx, query, args...).Scan(&staff.ID, &staff.IsActive, &staff.CreatedAt, &staff.Version); err != nil {
		switch constraintName(err) {
		case "staff_username_key":
			return domain.ErrConflict.Withf("用户名 %s 已存在", staff.Username)
		default:
			return err
		}
	}

	return nil
}

// ListStaff 列出某个门店的在职员工
func (r *Repository) ListStaff(ctx context.Context, businessID int64) ([]*domain.Staff, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, `SELECT `+staffColumns+` FROM staff WHERE business_id = $1 AND is_active ORDER BY id`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	staff := make([]*domain.Staff, 0)
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		staff = append(staff, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return staff, nil
}
