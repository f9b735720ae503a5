package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/mmeshcher/carrental-system/internal/model"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const defaultAttemptTimeout = 3 * time.Second

var defaultRetryDelays = []time.Duration{100 * time.Millisecond, 300 * time.Millisecond, 500 * time.Millisecond}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool           *pgxpool.Pool
	attemptTimeout time.Duration
	retryDelays    []time.Duration
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
// attemptTimeout ограничивает одну попытку обращения к БД.
func NewPostgresRepository(dsn string, attemptTimeout time.Duration) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if attemptTimeout <= 0 {
		attemptTimeout = defaultAttemptTimeout
	}

	r := &PostgresRepository{
		pool:           pool,
		attemptTimeout: attemptTimeout,
		retryDelays:    defaultRetryDelays,
	}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// OpenDB возвращает *sql.DB поверх пула соединений. Закрывает вызывающий.
func (r *PostgresRepository) OpenDB() *sql.DB {
	return stdlib.OpenDBFromPool(r.pool)
}

// withRetry выполняет fn с таймаутом на попытку и повторяет при временных ошибках.
// Исчерпав попытки, возвращает ошибку вида model.ErrTransient.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error

	for i := 0; i <= len(r.retryDelays); i++ {
		attemptCtx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
		err = fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}

		// Если отменён внешний контекст — выходим сразу
		if ctx.Err() != nil {
			return err
		}

		if !isRetryable(err) {
			return err
		}

		if i < len(r.retryDelays) {
			timer := time.NewTimer(r.retryDelays[i])
			select {
			case <-ctx.Done():
				timer.Stop()
				return err
			case <-timer.C:
			}
		}
	}

	return fmt.Errorf("%w: %v", model.ErrTransient, err)
}

func isRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected, pgerrcode.LockNotAvailable,
			pgerrcode.QueryCanceled:
			return true
		}
		return pgerrcode.IsConnectionException(pgErr.Code)
	}

	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// InTx выполняет fn в транзакции. Временные ошибки приводят к повтору всей транзакции.
func (r *PostgresRepository) InTx(ctx context.Context, fn TxFunc) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(ctx, &pgTx{tx: tx}); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, u *model.User) (int64, error) {
	var id int64
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.pool.QueryRow(ctx,
			`INSERT INTO users (name, telephone_number, email, password_hash, role, total_spend, tier)
			 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			u.Name, u.TelephoneNumber, u.Email, u.PasswordHash, string(u.Role), u.TotalSpendCents, u.Tier,
		).Scan(&id)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: user with email %s already exists", model.ErrConflict, u.Email)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id, fmt.Sprintf("user %d", id))
}

// GetUserByEmail возвращает пользователя по email.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email, "user "+email)
}

func (r *PostgresRepository) getUser(ctx context.Context, query string, arg any, what string) (*model.User, error) {
	var u *model.User
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var err error
		u, err = scanUser(r.pool.QueryRow(ctx, query, arg))
		return err
	})
	if err != nil {
		return nil, notFoundOr(err, what, "get user")
	}
	return u, nil
}

// CreateProvider создаёт нового провайдера.
func (r *PostgresRepository) CreateProvider(ctx context.Context, p *model.Provider) (int64, error) {
	var id int64
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.pool.QueryRow(ctx,
			`INSERT INTO providers (name, address, telephone_number, email, password_hash)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			p.Name, p.Address, p.TelephoneNumber, p.Email, p.PasswordHash,
		).Scan(&id)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: provider with email %s already exists", model.ErrConflict, p.Email)
		}
		return 0, fmt.Errorf("create provider: %w", err)
	}
	return id, nil
}

// GetProviderByID возвращает провайдера по идентификатору.
func (r *PostgresRepository) GetProviderByID(ctx context.Context, id int64) (*model.Provider, error) {
	return r.getProvider(ctx, `SELECT `+providerColumns+` FROM providers WHERE id = $1`, id, fmt.Sprintf("provider %d", id))
}

// GetProviderByEmail возвращает провайдера по email.
func (r *PostgresRepository) GetProviderByEmail(ctx context.Context, email string) (*model.Provider, error) {
	return r.getProvider(ctx, `SELECT `+providerColumns+` FROM providers WHERE email = $1`, email, "provider "+email)
}

func (r *PostgresRepository) getProvider(ctx context.Context, query string, arg any, what string) (*model.Provider, error) {
	var p *model.Provider
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var err error
		p, err = scanProvider(r.pool.QueryRow(ctx, query, arg))
		return err
	})
	if err != nil {
		return nil, notFoundOr(err, what, "get provider")
	}
	return p, nil
}

// ListProviders возвращает всех провайдеров по возрастанию id.
func (r *PostgresRepository) ListProviders(ctx context.Context) ([]model.Provider, error) {
	var providers []model.Provider
	err := r.withRetry(ctx, func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx, `SELECT `+providerColumns+` FROM providers ORDER BY id`)
		if err != nil {
			return err
		}
		providers, err = collect(rows, scanProvider)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("select providers: %w", err)
	}
	return providers, nil
}

// ListUsersByRole возвращает пользователей с ролью role по возрастанию id.
func (r *PostgresRepository) ListUsersByRole(ctx context.Context, role model.Role) ([]model.User, error) {
	var users []model.User
	err := r.withRetry(ctx, func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE role = $1 ORDER BY id`, string(role))
		if err != nil {
			return err
		}
		users, err = collect(rows, scanUser)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	return users, nil
}

// CreateCar добавляет автомобиль.
func (r *PostgresRepository) CreateCar(ctx context.Context, c *model.Car) (int64, error) {
	var id int64
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.pool.QueryRow(ctx,
			`INSERT INTO cars (provider_id, license_plate, brand, model, type, color, manufacture_date, daily_rate, tier, available)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id, created_at`,
			c.ProviderID, c.LicensePlate, c.Brand, c.Model, string(c.Type), c.Color,
			c.ManufactureDate, c.DailyRateCents, c.Tier, c.Available,
		).Scan(&id, &c.CreatedAt)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.UniqueViolation:
				return 0, fmt.Errorf("%w: car with license plate %s already exists", model.ErrConflict, c.LicensePlate)
			case pgerrcode.ForeignKeyViolation:
				return 0, fmt.Errorf("%w: provider %d", model.ErrNotFound, c.ProviderID)
			}
		}
		return 0, fmt.Errorf("create car: %w", err)
	}
	return id, nil
}

// GetCar возвращает автомобиль по идентификатору.
func (r *PostgresRepository) GetCar(ctx context.Context, id int64) (*model.Car, error) {
	var c *model.Car
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var err error
		c, err = scanCar(r.pool.QueryRow(ctx, `SELECT `+carColumns+` FROM cars WHERE id = $1`, id))
		return err
	})
	if err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("car %d", id), "get car")
	}
	return c, nil
}

// ListCars возвращает автомобили по фильтру, новые модели первыми.
func (r *PostgresRepository) ListCars(ctx context.Context, f model.CarFilter) ([]model.Car, error) {
	var (
		conds []string
		args  []any
	)
	if f.ProviderID != nil {
		args = append(args, *f.ProviderID)
		conds = append(conds, fmt.Sprintf("provider_id = $%d", len(args)))
	}
	if f.Available != nil {
		args = append(args, *f.Available)
		conds = append(conds, fmt.Sprintf("available = $%d", len(args)))
	}
	if f.MaxTier != nil {
		args = append(args, *f.MaxTier)
		conds = append(conds, fmt.Sprintf("tier <= $%d", len(args)))
	}

	query := `SELECT ` + carColumns + ` FROM cars` + where(conds) + ` ORDER BY manufacture_date DESC, id`
	// Limit 0 означает выборку без ограничения.
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var cars []model.Car
	err := r.withRetry(ctx, func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		cars, err = collect(rows, scanCar)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("select cars: %w", err)
	}
	return cars, nil
}

// ListCarIDs возвращает идентификаторы всех автомобилей.
func (r *PostgresRepository) ListCarIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.withRetry(ctx, func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx, `SELECT id FROM cars ORDER BY id`)
		if err != nil {
			return err
		}
		ids, err = pgx.CollectRows(rows, pgx.RowTo[int64])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("select car ids: %w", err)
	}
	return ids, nil
}

// GetRent возвращает аренду по идентификатору.
func (r *PostgresRepository) GetRent(ctx context.Context, id int64) (*model.Rent, error) {
	var rent *model.Rent
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var err error
		rent, err = scanRent(r.pool.QueryRow(ctx, `SELECT `+rentColumns+` FROM rents r WHERE r.id = $1`, id))
		return err
	})
	if err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("rent %d", id), "get rent")
	}
	return rent, nil
}

// ListRents возвращает аренды по фильтру, новые первыми.
func (r *PostgresRepository) ListRents(ctx context.Context, f model.RentFilter) ([]model.Rent, error) {
	var (
		conds []string
		args  []any
	)
	if f.UserID != nil {
		args = append(args, *f.UserID)
		conds = append(conds, fmt.Sprintf("r.user_id = $%d", len(args)))
	}
	if f.CarID != nil {
		args = append(args, *f.CarID)
		conds = append(conds, fmt.Sprintf("r.car_id = $%d", len(args)))
	}
	if f.ProviderID != nil {
		args = append(args, *f.ProviderID)
		conds = append(conds, fmt.Sprintf("c.provider_id = $%d", len(args)))
	}

	query := `SELECT ` + rentColumns + ` FROM rents r JOIN cars c ON c.id = r.car_id` +
		where(conds) + ` ORDER BY r.created_at DESC, r.id DESC`

	var rents []model.Rent
	err := r.withRetry(ctx, func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		rents, err = collect(rows, scanRent)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("select rents: %w", err)
	}
	return rents, nil
}

func where(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func notFoundOr(err error, what, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", model.ErrNotFound, what)
	}
	if errors.Is(err, model.ErrTransient) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
