package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/messops/mess-system/internal/model"
)

// ReportStats содержит сводную статистику для панели владельца.
// Выручка считается по одобренным платёжным заявкам и хранится в пайсах.
type ReportStats struct {
	Customers       int64
	MealsServed     int64
	MealsToday      int64
	RevenuePaise    int64
	PendingPayments int64
	PendingLeaves   int64
}

// Report собирает сводную статистику на указанный момент времени.
func (r *PostgresRepository) Report(ctx context.Context, now time.Time) (*ReportStats, error) {
	dayStart := model.DayStartUTC(now)
	dayEnd := dayStart.Add(24 * time.Hour)

	var stats ReportStats
	err := r.pool.QueryRow(ctx,
		`SELECT
		     (SELECT COUNT(*) FROM customers WHERE role = $1),
		     (SELECT COUNT(*) FROM attendance),
		     (SELECT COUNT(*) FROM attendance WHERE ts >= $2 AND ts < $3),
		     (SELECT COALESCE(SUM(amount), 0) FROM payment_requests WHERE status = $4),
		     (SELECT COUNT(*) FROM payment_requests WHERE status = $5),
		     (SELECT COUNT(*) FROM leave_requests WHERE status = $5)`,
		string(model.RoleCustomer), dayStart, dayEnd,
		string(model.StatusApproved), string(model.StatusPending),
	).Scan(&stats.Customers, &stats.MealsServed, &stats.MealsToday,
		&stats.RevenuePaise, &stats.PendingPayments, &stats.PendingLeaves)
	if err != nil {
		return nil, fmt.Errorf("select report stats: %w", err)
	}

	return &stats, nil
}

// UpsertMenuEntry создаёт или обновляет меню на день недели.
func (r *PostgresRepository) UpsertMenuEntry(ctx context.Context, entry model.MenuEntry) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO weekly_menu (day, lunch, dinner) VALUES ($1, $2, $3)
		 ON CONFLICT (day) DO UPDATE SET lunch = EXCLUDED.lunch, dinner = EXCLUDED.dinner`,
		entry.Day, entry.Lunch, entry.Dinner,
	)
	if err != nil {
		return fmt.Errorf("upsert menu entry: %w", err)
	}
	return nil
}

// ListMenu возвращает меню на неделю.
func (r *PostgresRepository) ListMenu(ctx context.Context) ([]model.MenuEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT day, lunch, dinner FROM weekly_menu`)
	if err != nil {
		return nil, fmt.Errorf("select menu: %w", err)
	}
	defer rows.Close()

	var res []model.MenuEntry
	for rows.Next() {
		var e model.MenuEntry
		if err := rows.Scan(&e.Day, &e.Lunch, &e.Dinner); err != nil {
			return nil, fmt.Errorf("scan menu entry: %w", err)
		}
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateNotification сохраняет уведомление. Пустой адресат означает
// широковещательное уведомление для всех клиентов.
func (r *PostgresRepository) CreateNotification(ctx context.Context, n model.Notification) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO notifications (title, message, date, to_customer_id) VALUES ($1, $2, $3, $4)`,
		n.Title, n.Message, n.Date, n.ToCustomerID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return ErrCustomerNotFound
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotificationsForCustomer возвращает адресные и широковещательные
// уведомления клиента, новые первыми.
func (r *PostgresRepository) ListNotificationsForCustomer(ctx context.Context, customerID int64) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, message, date, to_customer_id
		 FROM notifications
		 WHERE to_customer_id IS NULL OR to_customer_id = $1
		 ORDER BY date DESC`,
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select notifications: %w", err)
	}
	defer rows.Close()

	var res []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.Title, &n.Message, &n.Date, &n.ToCustomerID); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		res = append(res, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateFeedback сохраняет отзыв клиента.
func (r *PostgresRepository) CreateFeedback(ctx context.Context, f model.Feedback) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO feedback (customer_id, content, date) VALUES ($1, $2, $3)`,
		f.CustomerID, f.Content, f.Date,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return ErrCustomerNotFound
		}
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

// ListFeedback возвращает все отзывы, новые первыми.
func (r *PostgresRepository) ListFeedback(ctx context.Context) ([]model.Feedback, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, customer_id, content, date FROM feedback ORDER BY date DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("select feedback: %w", err)
	}
	defer rows.Close()

	var res []model.Feedback
	for rows.Next() {
		var f model.Feedback
		if err := rows.Scan(&f.ID, &f.CustomerID, &f.Content, &f.Date); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		res = append(res, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
