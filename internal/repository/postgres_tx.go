package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mmeshcher/carrental-system/internal/model"
)

const (
	userColumns     = `id, name, telephone_number, email, password_hash, role, total_spend, tier, created_at`
	providerColumns = `id, name, address, telephone_number, email, password_hash, created_at`
	carColumns      = `id, provider_id, license_plate, brand, model, type, color, manufacture_date, daily_rate, tier, available, created_at`
	rentColumns     = `r.id, r.car_id, r.user_id, r.start_date, r.return_date, r.actual_return_date, r.status,
		r.price, r.additional_charges, r.notes, r.created_at`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u    model.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Name, &u.TelephoneNumber, &u.Email, &u.PasswordHash,
		&role, &u.TotalSpendCents, &u.Tier, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	return &u, nil
}

func scanProvider(row rowScanner) (*model.Provider, error) {
	var p model.Provider
	if err := row.Scan(&p.ID, &p.Name, &p.Address, &p.TelephoneNumber, &p.Email,
		&p.PasswordHash, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanCar(row rowScanner) (*model.Car, error) {
	var (
		c   model.Car
		typ string
	)
	if err := row.Scan(&c.ID, &c.ProviderID, &c.LicensePlate, &c.Brand, &c.Model, &typ, &c.Color,
		&c.ManufactureDate, &c.DailyRateCents, &c.Tier, &c.Available, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Type = model.CarType(typ)
	return &c, nil
}

func scanRent(row rowScanner) (*model.Rent, error) {
	var (
		r      model.Rent
		status string
	)
	if err := row.Scan(&r.ID, &r.CarID, &r.UserID, &r.StartDate, &r.ReturnDate, &r.ActualReturnDate,
		&status, &r.PriceCents, &r.AdditionalChargesCents, &r.Notes, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Status = model.RentStatus(status)
	return &r, nil
}

func collect[T any](rows pgx.Rows, scan func(rowScanner) (*T, error)) ([]T, error) {
	defer rows.Close()

	var res []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		res = append(res, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

func openStatuses() []string {
	res := make([]string, 0, len(model.OpenRentStatuses))
	for _, s := range model.OpenRentStatuses {
		res = append(res, string(s))
	}
	return res
}

// pgTx реализует Tx поверх транзакции pgx. Блокировки берутся через SELECT ... FOR UPDATE.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockProvider(ctx context.Context, id int64) (*model.Provider, error) {
	p, err := scanProvider(t.tx.QueryRow(ctx, `SELECT `+providerColumns+` FROM providers WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("provider %d", id), "lock provider")
	}
	return p, nil
}

func (t *pgTx) LockUser(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(t.tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("user %d", id), "lock user")
	}
	return u, nil
}

func (t *pgTx) LockCar(ctx context.Context, id int64) (*model.Car, error) {
	c, err := scanCar(t.tx.QueryRow(ctx, `SELECT `+carColumns+` FROM cars WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("car %d", id), "lock car")
	}
	return c, nil
}

func (t *pgTx) LockProviderCars(ctx context.Context, providerID int64) ([]model.Car, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+carColumns+` FROM cars WHERE provider_id = $1 ORDER BY id FOR UPDATE`, providerID)
	if err != nil {
		return nil, fmt.Errorf("lock provider cars: %w", err)
	}
	cars, err := collect(rows, scanCar)
	if err != nil {
		return nil, fmt.Errorf("lock provider cars: %w", err)
	}
	return cars, nil
}

func (t *pgTx) LockRent(ctx context.Context, id int64) (*model.Rent, error) {
	r, err := scanRent(t.tx.QueryRow(ctx, `SELECT `+rentColumns+` FROM rents r WHERE r.id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("rent %d", id), "lock rent")
	}
	return r, nil
}

func (t *pgTx) CountOpenRentsByUser(ctx context.Context, userID int64) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM rents WHERE user_id = $1 AND status = ANY($2)`,
		userID, openStatuses(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open rents: %w", err)
	}
	return n, nil
}

func (t *pgTx) FindOverlappingRent(ctx context.Context, carID int64, start, end time.Time) (*model.Rent, error) {
	r, err := scanRent(t.tx.QueryRow(ctx,
		`SELECT `+rentColumns+`
		 FROM rents r
		 WHERE r.car_id = $1 AND r.status = ANY($2) AND r.start_date < $4 AND r.return_date > $3
		 ORDER BY r.start_date
		 LIMIT 1`,
		carID, openStatuses(), start, end,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find overlapping rent: %w", err)
	}
	return r, nil
}

func (t *pgTx) HasOpenRents(ctx context.Context, carID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM rents WHERE car_id = $1 AND status = ANY($2))`,
		carID, openStatuses(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check open rents: %w", err)
	}
	return exists, nil
}

func (t *pgTx) InsertRent(ctx context.Context, rent *model.Rent) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO rents (car_id, user_id, start_date, return_date, status, price, additional_charges, notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		rent.CarID, rent.UserID, rent.StartDate, rent.ReturnDate, string(rent.Status),
		rent.PriceCents, rent.AdditionalChargesCents, rent.Notes, rent.CreatedAt,
	).Scan(&rent.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ExclusionViolation {
			return fmt.Errorf("%w: car %d is already booked for an overlapping period", model.ErrConflict, rent.CarID)
		}
		return fmt.Errorf("insert rent: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateRent(ctx context.Context, rent *model.Rent) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE rents SET status = $2, actual_return_date = $3, additional_charges = $4, notes = $5 WHERE id = $1`,
		rent.ID, string(rent.Status), rent.ActualReturnDate, rent.AdditionalChargesCents, rent.Notes,
	)
	if err != nil {
		return fmt.Errorf("update rent: %w", err)
	}
	return nil
}

func (t *pgTx) SetCarAvailability(ctx context.Context, carID int64, available bool) error {
	_, err := t.tx.Exec(ctx, `UPDATE cars SET available = $2 WHERE id = $1`, carID, available)
	if err != nil {
		return fmt.Errorf("update car availability: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateCar(ctx context.Context, car *model.Car) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE cars SET brand = $2, model = $3, color = $4, daily_rate = $5, tier = $6 WHERE id = $1`,
		car.ID, car.Brand, car.Model, car.Color, car.DailyRateCents, car.Tier,
	)
	if err != nil {
		return fmt.Errorf("update car: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteCar(ctx context.Context, carID int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM rents WHERE car_id = $1`, carID); err != nil {
		return fmt.Errorf("delete car rents: %w", err)
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM cars WHERE id = $1`, carID); err != nil {
		return fmt.Errorf("delete car: %w", err)
	}
	return nil
}

func (t *pgTx) SetUserSpend(ctx context.Context, userID int64, spendCents int64, tier int) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE users SET total_spend = $2, tier = $3 WHERE id = $1`,
		userID, spendCents, tier,
	)
	if err != nil {
		return fmt.Errorf("update user spend: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteUser(ctx context.Context, userID int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM rents WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete user rents: %w", err)
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %d", model.ErrNotFound, userID)
	}
	return nil
}

func (t *pgTx) UpdateProvider(ctx context.Context, p *model.Provider) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE providers SET name = $2, address = $3, telephone_number = $4 WHERE id = $1`,
		p.ID, p.Name, p.Address, p.TelephoneNumber,
	)
	if err != nil {
		return fmt.Errorf("update provider: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteProvider(ctx context.Context, providerID int64) error {
	var busy bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM rents r JOIN cars c ON c.id = r.car_id
			WHERE c.provider_id = $1 AND r.status = ANY($2))`,
		providerID, openStatuses(),
	).Scan(&busy)
	if err != nil {
		return fmt.Errorf("check provider rents: %w", err)
	}
	if busy {
		return fmt.Errorf("%w: provider %d has cars with unfinished rents", model.ErrConflict, providerID)
	}

	_, err = t.tx.Exec(ctx,
		`DELETE FROM rents WHERE car_id IN (SELECT id FROM cars WHERE provider_id = $1)`, providerID)
	if err != nil {
		return fmt.Errorf("delete provider rents: %w", err)
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM cars WHERE provider_id = $1`, providerID); err != nil {
		return fmt.Errorf("delete provider cars: %w", err)
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM providers WHERE id = $1`, providerID)
	if err != nil {
		return fmt.Errorf("delete provider: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: provider %d", model.ErrNotFound, providerID)
	}
	return nil
}
