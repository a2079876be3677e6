// Package model содержит доменные сущности сервиса столовой.
package model

import "time"

// Role определяет роль учётной записи в системе.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleCustomer Role = "customer"
)

// Gender определяет пол клиента, от которого зависит тариф.
type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
)

// PlanType описывает тип абонемента: одно- или двухразовое питание.
type PlanType string

const (
	PlanOneTime PlanType = "OneTime"
	PlanTwoTime PlanType = "TwoTime"
)

// DailyAllowance возвращает количество приёмов пищи, доступных по тарифу за день.
func (p PlanType) DailyAllowance() int {
	if p == PlanTwoTime {
		return 2
	}
	return 1
}

// RequestStatus описывает статус заявки на оплату или отпуск.
type RequestStatus string

const (
	StatusPending  RequestStatus = "Pending"
	StatusApproved RequestStatus = "Approved"
	StatusRejected RequestStatus = "Rejected"
)

// Customer представляет зарегистрированного клиента столовой.
// Тарифные значения фиксируются на записи в момент регистрации.
type Customer struct {
	ID            int64
	MemberToken   string
	Username      string
	Email         string
	Name          string
	Phone         string
	PasswordHash  []byte
	Role          Role
	Gender        Gender
	Plan          PlanType
	DateOfBirth   *time.Time
	MonthlyCharge float64
	CostPerMeal   float64
	Balance       float64
	CreatedAt     time.Time
}

// Subscription описывает абонемент клиента на период питания.
type Subscription struct {
	ID         int64
	CustomerID int64
	StartDate  time.Time
	EndDate    time.Time
	Active     bool
}

// ActiveAt сообщает, действует ли абонемент на указанный момент.
// Истечение не хранится в базе, а вычисляется сравнением дат при чтении.
func (s *Subscription) ActiveAt(asOf time.Time) bool {
	if s == nil || !s.Active {
		return false
	}
	return !DayStartUTC(s.EndDate).Before(DayStartUTC(asOf))
}

// AttendanceRecord фиксирует один приём пищи. Запись неизменяема.
type AttendanceRecord struct {
	ID         int64
	CustomerID int64
	MealType   string
	Timestamp  time.Time
}

// PaymentRequest описывает заявку клиента на пополнение абонемента.
// Сумма фиксируется при создании, меняется только статус.
type PaymentRequest struct {
	ID          int64
	CustomerID  int64
	Amount      float64
	Reference   string
	Status      RequestStatus
	SubmittedAt time.Time
}

// LeaveRequest описывает заявку клиента на отпуск.
type LeaveRequest struct {
	ID          int64
	CustomerID  int64
	StartDate   time.Time
	Days        int
	Reason      string
	Status      RequestStatus
	RequestedAt time.Time
}

// MealRequest описывает пожелание клиента по питанию в свободной форме.
type MealRequest struct {
	ID          int64
	CustomerID  int64
	Content     string
	Status      RequestStatus
	RequestedAt time.Time
}

// MenuEntry описывает меню столовой на один день недели.
type MenuEntry struct {
	Day    string
	Lunch  string
	Dinner string
}

// Notification представляет уведомление для клиента или для всех.
type Notification struct {
	ID           int64
	Title        string
	Message      string
	Date         time.Time
	ToCustomerID *int64
}

// Feedback представляет отзыв клиента.
type Feedback struct {
	ID         int64
	CustomerID int64
	Content    string
	Date       time.Time
}

// AdmissionResult описывает успешный результат пропуска на приём пищи.
type AdmissionResult struct {
	CustomerName string
	Balance      float64
	Birthday     bool
	Message      string
}

// DayStartUTC возвращает начало календарного дня по UTC для указанного момента.
// Граница дня всегда полночь UTC, а не местное время столовой.
func DayStartUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// IsBirthday сообщает, совпадают ли месяц и день рождения с указанной датой.
func IsBirthday(dob *time.Time, asOf time.Time) bool {
	if dob == nil {
		return false
	}
	d := dob.UTC()
	u := asOf.UTC()
	return d.Month() == u.Month() && d.Day() == u.Day()
}
