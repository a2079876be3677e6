// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
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
	"github.com/pressly/goose/v3"

	"github.com/messops/mess-system/internal/identity"
	"github.com/messops/mess-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrCustomerExists возвращается при попытке создать клиента с занятым логином или почтой.
var (
	ErrCustomerExists = errors.New("customer already exists")
	// ErrOwnerExists возвращается, если учётная запись владельца уже создана.
	ErrOwnerExists = errors.New("owner account already exists")
	// ErrCustomerNotFound возвращается, если клиент не найден.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrUnknownMember возвращается при сканировании токена, не принадлежащего ни одному клиенту.
	ErrUnknownMember = errors.New("unknown member")
	// ErrSubscriptionExpired возвращается, если у клиента нет действующего абонемента.
	ErrSubscriptionExpired = errors.New("subscription expired")
	// ErrDailyLimitReached возвращается, если дневной лимит приёмов пищи исчерпан.
	ErrDailyLimitReached = errors.New("daily meal limit reached")
	// ErrDuplicateMeal возвращается при повторном сканировании того же приёма пищи за день.
	ErrDuplicateMeal = errors.New("meal already recorded today")
	// ErrInsufficientBalance возвращается при попытке списания суммы, превышающей баланс.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrDuplicatePending возвращается, если платёжная ссылка уже ждёт подтверждения.
	ErrDuplicatePending = errors.New("payment reference already pending")
	// ErrAlreadySettled возвращается при повторной попытке обработать заявку.
	ErrAlreadySettled = errors.New("request already settled")
	// ErrNoActiveSubscription возвращается, когда продлевать нечего.
	ErrNoActiveSubscription = errors.New("no active subscription")
	// ErrRequestNotFound возвращается, если заявка не найдена.
	ErrRequestNotFound = errors.New("request not found")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
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

	r := &PostgresRepository{pool: pool}

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

// withConflictRetry выполняет fn и один раз прозрачно повторяет её при
// конфликте сериализации или дедлоке. Прочие ошибки отдаются сразу.
func (r *PostgresRepository) withConflictRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{200 * time.Millisecond}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// NewCustomer описывает данные для регистрации нового клиента.
// Тарифные суммы передаются в пайсах и фиксируются на записи клиента.
type NewCustomer struct {
	Username           string
	Email              string
	Name               string
	Phone              string
	PasswordHash       []byte
	Role               model.Role
	Gender             model.Gender
	Plan               model.PlanType
	DateOfBirth        *time.Time
	MonthlyChargePaise int64
	CostPerMealPaise   int64
}

// CreateCustomer регистрирует клиента и выдаёт ему следующий членский токен.
// Строка последовательности блокируется на время транзакции, поэтому два
// одновременных запроса не получат один и тот же токен.
func (r *PostgresRepository) CreateCustomer(ctx context.Context, nc NewCustomer) (int64, string, error) {
	var (
		id    int64
		token string
	)

	err := r.withConflictRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if nc.Role == model.RoleOwner {
			var ownerExists bool
			err = tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM customers WHERE role = $1)`,
				string(model.RoleOwner),
			).Scan(&ownerExists)
			if err != nil {
				return fmt.Errorf("check owner: %w", err)
			}
			if ownerExists {
				return ErrOwnerExists
			}
		}

		var last string
		err = tx.QueryRow(ctx,
			`SELECT last_token FROM member_sequence WHERE id = 1 FOR UPDATE`,
		).Scan(&last)
		if err != nil {
			return fmt.Errorf("lock member sequence: %w", err)
		}

		token, err = identity.NextToken(last)
		if err != nil {
			return err
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO customers
			     (member_token, username, email, name, phone, password_hash, role, gender, plan,
			      date_of_birth, monthly_charge, cost_per_meal)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			 RETURNING id`,
			token, nc.Username, nc.Email, nc.Name, nc.Phone, nc.PasswordHash,
			string(nc.Role), string(nc.Gender), string(nc.Plan),
			nc.DateOfBirth, nc.MonthlyChargePaise, nc.CostPerMealPaise,
		).Scan(&id)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return fmt.Errorf("%w: %s", ErrCustomerExists, nc.Username)
			}
			return fmt.Errorf("insert customer: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE member_sequence SET last_token = $1 WHERE id = 1`,
			token,
		)
		if err != nil {
			return fmt.Errorf("advance member sequence: %w", err)
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return 0, "", err
	}

	return id, token, nil
}

const customerColumns = `id, member_token, username, email, name, phone, password_hash,
	role, gender, plan, date_of_birth, monthly_charge, cost_per_meal, balance, created_at`

func scanCustomer(row pgx.Row) (*model.Customer, error) {
	var (
		c             model.Customer
		role          string
		gender        string
		plan          string
		dob           *time.Time
		monthlyCharge int64
		costPerMeal   int64
		balance       int64
	)

	err := row.Scan(&c.ID, &c.MemberToken, &c.Username, &c.Email, &c.Name, &c.Phone,
		&c.PasswordHash, &role, &gender, &plan, &dob,
		&monthlyCharge, &costPerMeal, &balance, &c.CreatedAt)
	if err != nil {
		return nil, err
	}

	c.Role = model.Role(role)
	c.Gender = model.Gender(gender)
	c.Plan = model.PlanType(plan)
	c.DateOfBirth = dob
	c.MonthlyCharge = paiseToRupees(monthlyCharge)
	c.CostPerMeal = paiseToRupees(costPerMeal)
	c.Balance = paiseToRupees(balance)

	return &c, nil
}

// GetCustomerByUsername возвращает клиента по логину.
func (r *PostgresRepository) GetCustomerByUsername(ctx context.Context, username string) (*model.Customer, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE username = $1`,
		username,
	)

	c, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}

	return c, nil
}

// GetCustomerByID возвращает клиента по идентификатору.
func (r *PostgresRepository) GetCustomerByID(ctx context.Context, id int64) (*model.Customer, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1`,
		id,
	)

	c, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}

	return c, nil
}

// ListCustomers возвращает клиентов, отсортированных по логину.
// Непустой фильтр ищет по членскому токену и логину без учёта регистра.
func (r *PostgresRepository) ListCustomers(ctx context.Context, search string) ([]model.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE role = $1`
	args := []any{string(model.RoleCustomer)}

	if search != "" {
		query += ` AND (member_token ILIKE $2 OR username ILIKE $2)`
		args = append(args, "%"+search+"%")
	}
	query += ` ORDER BY username`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select customers: %w", err)
	}
	defer rows.Close()

	var res []model.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		res = append(res, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// DeleteCustomer удаляет учётную запись клиента вместе с зависимыми записями.
func (r *PostgresRepository) DeleteCustomer(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

func paiseToRupees(paise int64) float64 {
	return float64(paise) / 100
}
