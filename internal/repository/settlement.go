package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/messops/mess-system/internal/model"
)

// renewalDays — срок, на который продлевает абонемент одобренный платёж.
const renewalDays = 30

// GetActiveSubscription возвращает активный абонемент клиента или nil,
// если его нет. Действительность по дате оценивает вызывающая сторона
// через Subscription.ActiveAt.
func (r *PostgresRepository) GetActiveSubscription(ctx context.Context, customerID int64) (*model.Subscription, error) {
	var s model.Subscription
	err := r.pool.QueryRow(ctx,
		`SELECT id, customer_id, start_date, end_date, is_active
		 FROM subscriptions
		 WHERE customer_id = $1 AND is_active
		 ORDER BY end_date DESC LIMIT 1`,
		customerID,
	).Scan(&s.ID, &s.CustomerID, &s.StartDate, &s.EndDate, &s.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select subscription: %w", err)
	}

	return &s, nil
}

// createOrExtendTx продлевает действующий абонемент клиента на extraDays
// дней или создаёт новый, начинающийся сегодня. Строка абонемента
// блокируется до конца транзакции.
func createOrExtendTx(ctx context.Context, tx pgx.Tx, customerID int64, extraDays int, now time.Time) error {
	var (
		subID   int64
		endDate time.Time
	)
	err := tx.QueryRow(ctx,
		`SELECT id, end_date FROM subscriptions
		 WHERE customer_id = $1 AND is_active
		 ORDER BY end_date DESC LIMIT 1
		 FOR UPDATE`,
		customerID,
	).Scan(&subID, &endDate)

	today := model.DayStartUTC(now)

	switch {
	case err == nil && !model.DayStartUTC(endDate).Before(today):
		_, err = tx.Exec(ctx,
			`UPDATE subscriptions SET end_date = (end_date + make_interval(days => $2))::date WHERE id = $1`,
			subID, int32(extraDays),
		)
		if err != nil {
			return fmt.Errorf("extend subscription: %w", err)
		}
	case err == nil || errors.Is(err, pgx.ErrNoRows):
		_, err = tx.Exec(ctx,
			`INSERT INTO subscriptions (customer_id, start_date, end_date)
			 VALUES ($1, $2, $3)`,
			customerID, today, today.AddDate(0, 0, extraDays),
		)
		if err != nil {
			return fmt.Errorf("create subscription: %w", err)
		}
	default:
		return fmt.Errorf("select subscription: %w", err)
	}

	return nil
}

// SubmitPayment создаёт заявку на оплату с суммой, равной текущей месячной
// плате клиента. Платёжная ссылка, уже ожидающая подтверждения, отклоняется —
// причём у любого клиента, а не только у подателя.
func (r *PostgresRepository) SubmitPayment(ctx context.Context, customerID int64, reference string, now time.Time) (*model.PaymentRequest, error) {
	var p model.PaymentRequest

	err := r.withConflictRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var pending bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS (
			     SELECT 1 FROM payment_requests
			     WHERE reference = $1 AND status = $2
			 )`,
			reference, string(model.StatusPending),
		).Scan(&pending)
		if err != nil {
			return fmt.Errorf("check pending reference: %w", err)
		}
		if pending {
			return ErrDuplicatePending
		}

		var amountPaise int64
		err = tx.QueryRow(ctx,
			`SELECT monthly_charge FROM customers WHERE id = $1`,
			customerID,
		).Scan(&amountPaise)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrCustomerNotFound
			}
			return fmt.Errorf("select monthly charge: %w", err)
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO payment_requests (customer_id, amount, reference, status, submitted_at)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id, submitted_at`,
			customerID, amountPaise, reference, string(model.StatusPending), now,
		).Scan(&p.ID, &p.SubmittedAt)
		if err != nil {
			// Частичный уникальный индекс закрывает гонку двух одновременных заявок.
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return ErrDuplicatePending
			}
			return fmt.Errorf("insert payment request: %w", err)
		}

		p.CustomerID = customerID
		p.Amount = paiseToRupees(amountPaise)
		p.Reference = reference
		p.Status = model.StatusPending

		return tx.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// SettlePayment переводит заявку из Pending в Approved или Rejected.
// Переход выполняется атомарным сравнением статуса: вторая попытка
// обработать ту же заявку получает ErrAlreadySettled. Одобрение продлевает
// абонемент на 30 дней и зачисляет сумму заявки на кошелёк.
func (r *PostgresRepository) SettlePayment(ctx context.Context, requestID int64, approve bool, now time.Time) (*model.PaymentRequest, error) {
	status := model.StatusRejected
	if approve {
		status = model.StatusApproved
	}

	var p model.PaymentRequest

	err := r.withConflictRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var amountPaise int64
		err = tx.QueryRow(ctx,
			`UPDATE payment_requests SET status = $2
			 WHERE id = $1 AND status = $3
			 RETURNING customer_id, amount, reference, submitted_at`,
			requestID, string(status), string(model.StatusPending),
		).Scan(&p.CustomerID, &amountPaise, &p.Reference, &p.SubmittedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return r.classifySettleMiss(ctx, tx, `SELECT 1 FROM payment_requests WHERE id = $1`, requestID)
			}
			return fmt.Errorf("settle payment request: %w", err)
		}

		p.ID = requestID
		p.Amount = paiseToRupees(amountPaise)
		p.Status = status

		if approve {
			// Блокировка строки клиента сериализует зачисление со списаниями.
			var dummy int
			err = tx.QueryRow(ctx, `SELECT 1 FROM customers WHERE id = $1 FOR UPDATE`, p.CustomerID).Scan(&dummy)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrCustomerNotFound
				}
				return fmt.Errorf("lock customer: %w", err)
			}

			if err := createOrExtendTx(ctx, tx, p.CustomerID, renewalDays, now); err != nil {
				return err
			}

			_, err = tx.Exec(ctx,
				`UPDATE customers SET balance = balance + $2 WHERE id = $1`,
				p.CustomerID, amountPaise,
			)
			if err != nil {
				return fmt.Errorf("credit wallet: %w", err)
			}
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// classifySettleMiss различает отсутствующую заявку и уже обработанную.
func (r *PostgresRepository) classifySettleMiss(ctx context.Context, tx pgx.Tx, existsQuery string, requestID int64) error {
	var dummy int
	err := tx.QueryRow(ctx, existsQuery, requestID).Scan(&dummy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrRequestNotFound
		}
		return fmt.Errorf("check request: %w", err)
	}
	return ErrAlreadySettled
}

// GetPaymentsByCustomer возвращает историю платёжных заявок клиента.
func (r *PostgresRepository) GetPaymentsByCustomer(ctx context.Context, customerID int64) ([]model.PaymentRequest, error) {
	return r.selectPayments(ctx,
		`SELECT id, customer_id, amount, reference, status, submitted_at
		 FROM payment_requests
		 WHERE customer_id = $1
		 ORDER BY submitted_at DESC`,
		customerID,
	)
}

// ListPaymentsByStatus возвращает платёжные заявки в указанном статусе.
func (r *PostgresRepository) ListPaymentsByStatus(ctx context.Context, status model.RequestStatus) ([]model.PaymentRequest, error) {
	return r.selectPayments(ctx,
		`SELECT id, customer_id, amount, reference, status, submitted_at
		 FROM payment_requests
		 WHERE status = $1
		 ORDER BY submitted_at DESC`,
		string(status),
	)
}

func (r *PostgresRepository) selectPayments(ctx context.Context, query string, args ...any) ([]model.PaymentRequest, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select payment requests: %w", err)
	}
	defer rows.Close()

	var res []model.PaymentRequest
	for rows.Next() {
		var (
			p           model.PaymentRequest
			amountPaise int64
			status      string
		)
		if err := rows.Scan(&p.ID, &p.CustomerID, &amountPaise, &p.Reference, &status, &p.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan payment request: %w", err)
		}
		p.Amount = paiseToRupees(amountPaise)
		p.Status = model.RequestStatus(status)
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// SubmitLeave создаёт заявку клиента на отпуск.
func (r *PostgresRepository) SubmitLeave(ctx context.Context, customerID int64, startDate time.Time, days int, reason string, now time.Time) (*model.LeaveRequest, error) {
	l := model.LeaveRequest{
		CustomerID: customerID,
		StartDate:  model.DayStartUTC(startDate),
		Days:       days,
		Reason:     reason,
		Status:     model.StatusPending,
	}

	err := r.pool.QueryRow(ctx,
		`INSERT INTO leave_requests (customer_id, start_date, days, reason, status, requested_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, requested_at`,
		customerID, l.StartDate, days, reason, string(model.StatusPending), now,
	).Scan(&l.ID, &l.RequestedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("insert leave request: %w", err)
	}

	return &l, nil
}

// SettleLeave переводит заявку на отпуск из Pending в Approved или Rejected.
// Одобрение требует действующего абонемента и продлевает его на число дней
// отпуска; без абонемента транзакция откатывается и заявка остаётся Pending.
func (r *PostgresRepository) SettleLeave(ctx context.Context, requestID int64, approve bool, now time.Time) (*model.LeaveRequest, error) {
	status := model.StatusRejected
	if approve {
		status = model.StatusApproved
	}

	var l model.LeaveRequest

	err := r.withConflictRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var curStatus string
		err = tx.QueryRow(ctx,
			`SELECT customer_id, start_date, days, reason, status, requested_at
			 FROM leave_requests WHERE id = $1 FOR UPDATE`,
			requestID,
		).Scan(&l.CustomerID, &l.StartDate, &l.Days, &l.Reason, &curStatus, &l.RequestedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrRequestNotFound
			}
			return fmt.Errorf("select leave request: %w", err)
		}
		if model.RequestStatus(curStatus) != model.StatusPending {
			return ErrAlreadySettled
		}

		if approve {
			var (
				subID   int64
				endDate time.Time
			)
			err = tx.QueryRow(ctx,
				`SELECT id, end_date FROM subscriptions
				 WHERE customer_id = $1 AND is_active
				 ORDER BY end_date DESC LIMIT 1
				 FOR UPDATE`,
				l.CustomerID,
			).Scan(&subID, &endDate)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrNoActiveSubscription
				}
				return fmt.Errorf("select subscription: %w", err)
			}

			_, err = tx.Exec(ctx,
				`UPDATE subscriptions SET end_date = (end_date + make_interval(days => $2))::date WHERE id = $1`,
				subID, int32(l.Days),
			)
			if err != nil {
				return fmt.Errorf("extend subscription: %w", err)
			}
		}

		_, err = tx.Exec(ctx,
			`UPDATE leave_requests SET status = $2 WHERE id = $1`,
			requestID, string(status),
		)
		if err != nil {
			return fmt.Errorf("settle leave request: %w", err)
		}

		l.ID = requestID
		l.Status = status

		return tx.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}

	return &l, nil
}

// SubmitMealRequest создаёт пожелание клиента по питанию.
func (r *PostgresRepository) SubmitMealRequest(ctx context.Context, customerID int64, content string, now time.Time) (*model.MealRequest, error) {
	m := model.MealRequest{
		CustomerID: customerID,
		Content:    content,
		Status:     model.StatusPending,
	}

	err := r.pool.QueryRow(ctx,
		`INSERT INTO meal_requests (customer_id, content, status, requested_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, requested_at`,
		customerID, content, string(model.StatusPending), now,
	).Scan(&m.ID, &m.RequestedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("insert meal request: %w", err)
	}

	return &m, nil
}

// SettleMealRequest переводит пожелание по питанию из Pending в Approved
// или Rejected. Переход выполняется атомарным сравнением статуса: вторая
// попытка обработать то же пожелание получает ErrAlreadySettled.
// Побочных эффектов на абонемент и кошелёк нет.
func (r *PostgresRepository) SettleMealRequest(ctx context.Context, requestID int64, approve bool) (*model.MealRequest, error) {
	status := model.StatusRejected
	if approve {
		status = model.StatusApproved
	}

	var m model.MealRequest

	err := r.withConflictRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		err = tx.QueryRow(ctx,
			`UPDATE meal_requests SET status = $2
			 WHERE id = $1 AND status = $3
			 RETURNING customer_id, content, requested_at`,
			requestID, string(status), string(model.StatusPending),
		).Scan(&m.CustomerID, &m.Content, &m.RequestedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return r.classifySettleMiss(ctx, tx, `SELECT 1 FROM meal_requests WHERE id = $1`, requestID)
			}
			return fmt.Errorf("settle meal request: %w", err)
		}

		m.ID = requestID
		m.Status = status

		return tx.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}

	return &m, nil
}

// GetMealRequestsByCustomer возвращает пожелания клиента по питанию.
func (r *PostgresRepository) GetMealRequestsByCustomer(ctx context.Context, customerID int64) ([]model.MealRequest, error) {
	return r.selectMealRequests(ctx,
		`SELECT id, customer_id, content, status, requested_at
		 FROM meal_requests
		 WHERE customer_id = $1
		 ORDER BY requested_at DESC`,
		customerID,
	)
}

// ListMealRequestsByStatus возвращает пожелания по питанию в указанном статусе.
func (r *PostgresRepository) ListMealRequestsByStatus(ctx context.Context, status model.RequestStatus) ([]model.MealRequest, error) {
	return r.selectMealRequests(ctx,
		`SELECT id, customer_id, content, status, requested_at
		 FROM meal_requests
		 WHERE status = $1
		 ORDER BY requested_at DESC`,
		string(status),
	)
}

func (r *PostgresRepository) selectMealRequests(ctx context.Context, query string, args ...any) ([]model.MealRequest, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select meal requests: %w", err)
	}
	defer rows.Close()

	var res []model.MealRequest
	for rows.Next() {
		var (
			m      model.MealRequest
			status string
		)
		if err := rows.Scan(&m.ID, &m.CustomerID, &m.Content, &status, &m.RequestedAt); err != nil {
			return nil, fmt.Errorf("scan meal request: %w", err)
		}
		m.Status = model.RequestStatus(status)
		res = append(res, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetLeavesByCustomer возвращает заявки клиента на отпуск.
func (r *PostgresRepository) GetLeavesByCustomer(ctx context.Context, customerID int64) ([]model.LeaveRequest, error) {
	return r.selectLeaves(ctx,
		`SELECT id, customer_id, start_date, days, reason, status, requested_at
		 FROM leave_requests
		 WHERE customer_id = $1
		 ORDER BY requested_at DESC`,
		customerID,
	)
}

// ListLeavesByStatus возвращает заявки на отпуск в указанном статусе.
func (r *PostgresRepository) ListLeavesByStatus(ctx context.Context, status model.RequestStatus) ([]model.LeaveRequest, error) {
	return r.selectLeaves(ctx,
		`SELECT id, customer_id, start_date, days, reason, status, requested_at
		 FROM leave_requests
		 WHERE status = $1
		 ORDER BY requested_at DESC`,
		string(status),
	)
}

func (r *PostgresRepository) selectLeaves(ctx context.Context, query string, args ...any) ([]model.LeaveRequest, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select leave requests: %w", err)
	}
	defer rows.Close()

	var res []model.LeaveRequest
	for rows.Next() {
		var (
			l      model.LeaveRequest
			status string
		)
		if err := rows.Scan(&l.ID, &l.CustomerID, &l.StartDate, &l.Days, &l.Reason, &status, &l.RequestedAt); err != nil {
			return nil, fmt.Errorf("scan leave request: %w", err)
		}
		l.Status = model.RequestStatus(status)
		res = append(res, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
