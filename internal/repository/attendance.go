package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/messops/mess-system/internal/model"
)

// admissionState — снимок состояния клиента, собранный под блокировкой
// его строки. Решение о пропуске принимается только по этому снимку.
type admissionState struct {
	plan             model.PlanType
	subscriptionEnd  *time.Time // nil — активного абонемента нет
	todayCount       int
	sameMealToday    bool
	dateOfBirth      *time.Time
	costPerMealPaise int64
	balancePaise     int64
}

// decideAdmission применяет проверки пропуска в строгом порядке: абонемент,
// дневной лимит, повторный приём, стоимость, баланс. Каждая проверка
// обрывает цепочку своей ошибкой; успех возвращает сумму списания в пайсах.
// В день рождения приём пищи бесплатный, и баланс не проверяется.
func decideAdmission(st admissionState, now time.Time) (costPaise int64, birthday bool, err error) {
	dayStart := model.DayStartUTC(now)

	if st.subscriptionEnd == nil || model.DayStartUTC(*st.subscriptionEnd).Before(dayStart) {
		return 0, false, ErrSubscriptionExpired
	}

	if st.todayCount >= st.plan.DailyAllowance() {
		return 0, false, ErrDailyLimitReached
	}

	if st.sameMealToday {
		return 0, false, ErrDuplicateMeal
	}

	if model.IsBirthday(st.dateOfBirth, now) {
		return 0, true, nil
	}

	if st.balancePaise < st.costPerMealPaise {
		return 0, false, ErrInsufficientBalance
	}

	return st.costPerMealPaise, false, nil
}

// AdmitMeal проводит полный цикл пропуска на приём пищи одной транзакцией:
// поиск клиента, проверка абонемента, дневного лимита и повторного приёма,
// расчёт стоимости, списание и запись посещения. Строка клиента блокируется
// на время транзакции, поэтому два одновременных сканирования не спишут
// баланс дважды и не пройдут один и тот же приём пищи.
func (r *PostgresRepository) AdmitMeal(ctx context.Context, memberRef, mealType string, now time.Time) (*model.AdmissionResult, error) {
	var result *model.AdmissionResult

	err := r.withConflictRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		res, err := r.admitMealTx(ctx, tx, memberRef, mealType, now)
		if err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PostgresRepository) admitMealTx(ctx context.Context, tx pgx.Tx, memberRef, mealType string, now time.Time) (*model.AdmissionResult, error) {
	// Сканер может прислать как членский токен, так и числовой идентификатор.
	query := `SELECT id, name, username, plan, date_of_birth, cost_per_meal, balance
	          FROM customers WHERE member_token = $1 FOR UPDATE`
	args := []any{memberRef}
	if numericID, convErr := strconv.ParseInt(memberRef, 10, 64); convErr == nil {
		query = `SELECT id, name, username, plan, date_of_birth, cost_per_meal, balance
		         FROM customers WHERE member_token = $1 OR id = $2 FOR UPDATE`
		args = append(args, numericID)
	}

	var (
		customerID int64
		name       string
		username   string
		plan       string
		st         admissionState
	)
	err := tx.QueryRow(ctx, query, args...).Scan(
		&customerID, &name, &username, &plan, &st.dateOfBirth,
		&st.costPerMealPaise, &st.balancePaise,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUnknownMember
		}
		return nil, fmt.Errorf("resolve member: %w", err)
	}
	st.plan = model.PlanType(plan)
	if name == "" {
		name = username
	}

	dayStart := model.DayStartUTC(now)
	dayEnd := dayStart.Add(24 * time.Hour)

	err = tx.QueryRow(ctx,
		`SELECT end_date FROM subscriptions
		 WHERE customer_id = $1 AND is_active
		 ORDER BY end_date DESC LIMIT 1`,
		customerID,
	).Scan(&st.subscriptionEnd)
	if err != nil && err != pgx.ErrNoRows {
		return nil, fmt.Errorf("select subscription: %w", err)
	}

	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM attendance
		 WHERE customer_id = $1 AND ts >= $2 AND ts < $3`,
		customerID, dayStart, dayEnd,
	).Scan(&st.todayCount)
	if err != nil {
		return nil, fmt.Errorf("count attendance: %w", err)
	}

	err = tx.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM attendance
		     WHERE customer_id = $1 AND meal_type = $2 AND ts >= $3 AND ts < $4
		 )`,
		customerID, mealType, dayStart, dayEnd,
	).Scan(&st.sameMealToday)
	if err != nil {
		return nil, fmt.Errorf("check duplicate meal: %w", err)
	}

	cost, birthday, err := decideAdmission(st, now)
	if err != nil {
		return nil, err
	}

	balance := st.balancePaise
	if cost > 0 {
		_, err = tx.Exec(ctx,
			`UPDATE customers SET balance = balance - $2 WHERE id = $1`,
			customerID, cost,
		)
		if err != nil {
			return nil, fmt.Errorf("debit wallet: %w", err)
		}
		balance -= cost
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO attendance (customer_id, meal_type, ts) VALUES ($1, $2, $3)`,
		customerID, mealType, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert attendance: %w", err)
	}

	return &model.AdmissionResult{
		CustomerName: name,
		Balance:      paiseToRupees(balance),
		Birthday:     birthday,
	}, nil
}

// GetAttendanceByCustomer возвращает историю посещений клиента.
func (r *PostgresRepository) GetAttendanceByCustomer(ctx context.Context, customerID int64) ([]model.AttendanceRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, customer_id, meal_type, ts
		 FROM attendance
		 WHERE customer_id = $1
		 ORDER BY ts DESC`,
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select attendance: %w", err)
	}
	defer rows.Close()

	var res []model.AttendanceRecord
	for rows.Next() {
		var a model.AttendanceRecord
		if err := rows.Scan(&a.ID, &a.CustomerID, &a.MealType, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		res = append(res, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
