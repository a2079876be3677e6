// Package service реализует бизнес-логику сервиса столовой.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/messops/mess-system/internal/mailer"
	"github.com/messops/mess-system/internal/model"
	"github.com/messops/mess-system/internal/pricing"
	"github.com/messops/mess-system/internal/repository"
	"github.com/messops/mess-system/internal/validation"
)

// ErrInvalidUsername возвращается при регистрации с некорректным логином.
var (
	ErrInvalidUsername = errors.New("invalid username")
	// ErrWeakPassword возвращается при регистрации со слабым паролем.
	ErrWeakPassword = errors.New("weak password")
	// ErrInvalidAdminCode возвращается при попытке регистрации владельца с неверным кодом.
	ErrInvalidAdminCode = errors.New("invalid admin code")
	// ErrInvalidCredentials возвращается при неверном логине или пароле.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateCustomer(ctx context.Context, nc repository.NewCustomer) (int64, string, error)
	GetCustomerByUsername(ctx context.Context, username string) (*model.Customer, error)
	GetCustomerByID(ctx context.Context, id int64) (*model.Customer, error)
	ListCustomers(ctx context.Context, search string) ([]model.Customer, error)
	DeleteCustomer(ctx context.Context, id int64) error
	AdmitMeal(ctx context.Context, memberRef, mealType string, now time.Time) (*model.AdmissionResult, error)
	GetAttendanceByCustomer(ctx context.Context, customerID int64) ([]model.AttendanceRecord, error)
	GetActiveSubscription(ctx context.Context, customerID int64) (*model.Subscription, error)
	SubmitPayment(ctx context.Context, customerID int64, reference string, now time.Time) (*model.PaymentRequest, error)
	SettlePayment(ctx context.Context, requestID int64, approve bool, now time.Time) (*model.PaymentRequest, error)
	GetPaymentsByCustomer(ctx context.Context, customerID int64) ([]model.PaymentRequest, error)
	ListPaymentsByStatus(ctx context.Context, status model.RequestStatus) ([]model.PaymentRequest, error)
	SubmitMealRequest(ctx context.Context, customerID int64, content string, now time.Time) (*model.MealRequest, error)
	SettleMealRequest(ctx context.Context, requestID int64, approve bool) (*model.MealRequest, error)
	GetMealRequestsByCustomer(ctx context.Context, customerID int64) ([]model.MealRequest, error)
	ListMealRequestsByStatus(ctx context.Context, status model.RequestStatus) ([]model.MealRequest, error)
	SubmitLeave(ctx context.Context, customerID int64, startDate time.Time, days int, reason string, now time.Time) (*model.LeaveRequest, error)
	SettleLeave(ctx context.Context, requestID int64, approve bool, now time.Time) (*model.LeaveRequest, error)
	GetLeavesByCustomer(ctx context.Context, customerID int64) ([]model.LeaveRequest, error)
	ListLeavesByStatus(ctx context.Context, status model.RequestStatus) ([]model.LeaveRequest, error)
	Report(ctx context.Context, now time.Time) (*repository.ReportStats, error)
	UpsertMenuEntry(ctx context.Context, entry model.MenuEntry) error
	ListMenu(ctx context.Context) ([]model.MenuEntry, error)
	CreateNotification(ctx context.Context, n model.Notification) error
	ListNotificationsForCustomer(ctx context.Context, customerID int64) ([]model.Notification, error)
	CreateFeedback(ctx context.Context, f model.Feedback) error
	ListFeedback(ctx context.Context) ([]model.Feedback, error)
}

// Service содержит бизнес-логику сервиса столовой.
type Service struct {
	repo       Repository
	mailClient *mailer.Client
	prices     pricing.Table
	adminCode  string
	now        func() time.Time
}

// NewService создаёт новый сервис с указанным репозиторием, почтовым
// клиентом и тарифной таблицей. Пустой adminCode запрещает регистрацию
// владельца.
func NewService(repo Repository, mailClient *mailer.Client, prices pricing.Table, adminCode string) *Service {
	return &Service{
		repo:       repo,
		mailClient: mailClient,
		prices:     prices,
		adminCode:  adminCode,
		now:        time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Registration описывает данные формы регистрации.
type Registration struct {
	Username    string
	Email       string
	Name        string
	Phone       string
	Password    string
	AdminCode   string
	Gender      model.Gender
	Plan        model.PlanType
	DateOfBirth *time.Time
}

// RegisterCustomer регистрирует клиента, фиксируя на его записи тариф
// по полу и типу абонемента. Совпадение кода администратора создаёт
// учётную запись владельца.
func (s *Service) RegisterCustomer(ctx context.Context, reg Registration) (int64, string, error) {
	if !validation.IsValidUsername(reg.Username) {
		return 0, "", ErrInvalidUsername
	}
	if !validation.IsStrongPassword(reg.Password) {
		return 0, "", ErrWeakPassword
	}

	role := model.RoleCustomer
	if reg.AdminCode != "" {
		if s.adminCode == "" || reg.AdminCode != s.adminCode {
			return 0, "", ErrInvalidAdminCode
		}
		role = model.RoleOwner
	}

	if reg.Gender == "" {
		reg.Gender = model.GenderMale
	}
	if reg.Plan == "" {
		reg.Plan = model.PlanTwoTime
	}

	monthly, perMeal := s.prices.PriceFor(reg.Gender, reg.Plan)

	id, token, err := s.repo.CreateCustomer(ctx, repository.NewCustomer{
		Username:           reg.Username,
		Email:              reg.Email,
		Name:               reg.Name,
		Phone:              reg.Phone,
		PasswordHash:       hashPassword(reg.Username, reg.Password),
		Role:               role,
		Gender:             reg.Gender,
		Plan:               reg.Plan,
		DateOfBirth:        reg.DateOfBirth,
		MonthlyChargePaise: monthly,
		CostPerMealPaise:   perMeal,
	})
	if err != nil {
		return 0, "", err
	}

	return id, token, nil
}

// AuthenticateCustomer проверяет логин и пароль и возвращает учётную запись.
func (s *Service) AuthenticateCustomer(ctx context.Context, username, password string) (*model.Customer, error) {
	c, err := s.repo.GetCustomerByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrCustomerNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	hashed := hashPassword(username, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(c.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return c, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// AdmitMeal проводит сканирование членского токена и возвращает результат
// пропуска с человекочитаемым сообщением.
func (s *Service) AdmitMeal(ctx context.Context, memberRef, mealType string) (*model.AdmissionResult, error) {
	if memberRef == "" || mealType == "" {
		return nil, repository.ErrUnknownMember
	}

	res, err := s.repo.AdmitMeal(ctx, memberRef, mealType, s.now())
	if err != nil {
		return nil, err
	}

	if res.Birthday {
		res.Message = "Happy Birthday! Meal is free."
	} else {
		res.Message = fmt.Sprintf("Marked %s for %s", mealType, res.CustomerName)
	}

	return res, nil
}

// GetCustomer возвращает учётную запись клиента.
func (s *Service) GetCustomer(ctx context.Context, id int64) (*model.Customer, error) {
	return s.repo.GetCustomerByID(ctx, id)
}

// ListCustomers возвращает клиентов по необязательному поисковому фильтру.
func (s *Service) ListCustomers(ctx context.Context, search string) ([]model.Customer, error) {
	return s.repo.ListCustomers(ctx, search)
}

// DeleteAccount удаляет учётную запись клиента вместе с зависимыми записями.
func (s *Service) DeleteAccount(ctx context.Context, customerID int64) error {
	return s.repo.DeleteCustomer(ctx, customerID)
}

// SubscriptionStatus описывает абонемент вместе с оставшимися днями.
type SubscriptionStatus struct {
	Subscription  *model.Subscription
	Valid         bool
	DaysRemaining int
}

// GetSubscriptionStatus возвращает абонемент клиента и число оставшихся дней.
// Действительность выводится сравнением дат на момент вызова.
func (s *Service) GetSubscriptionStatus(ctx context.Context, customerID int64) (*SubscriptionStatus, error) {
	sub, err := s.repo.GetActiveSubscription(ctx, customerID)
	if err != nil {
		return nil, err
	}

	st := &SubscriptionStatus{Subscription: sub}
	if sub == nil {
		return st, nil
	}

	now := s.now()
	st.Valid = sub.ActiveAt(now)
	if st.Valid {
		st.DaysRemaining = int(model.DayStartUTC(sub.EndDate).Sub(model.DayStartUTC(now)) / (24 * time.Hour))
	}

	return st, nil
}

// GetAttendance возвращает историю посещений клиента.
func (s *Service) GetAttendance(ctx context.Context, customerID int64) ([]model.AttendanceRecord, error) {
	return s.repo.GetAttendanceByCustomer(ctx, customerID)
}

// SubmitPayment создаёт платёжную заявку клиента с указанной платёжной ссылкой.
func (s *Service) SubmitPayment(ctx context.Context, customerID int64, reference string) (*model.PaymentRequest, error) {
	if reference == "" {
		return nil, errors.New("payment reference must not be empty")
	}
	return s.repo.SubmitPayment(ctx, customerID, reference, s.now())
}

// SettlePayment одобряет или отклоняет платёжную заявку. Одобрение продлевает
// абонемент и пополняет кошелёк; в обоих случаях клиент получает уведомление.
func (s *Service) SettlePayment(ctx context.Context, requestID int64, approve bool) (*model.PaymentRequest, error) {
	p, err := s.repo.SettlePayment(ctx, requestID, approve, s.now())
	if err != nil {
		return nil, err
	}

	title := "Payment update"
	message := fmt.Sprintf("Your payment request %q has been rejected.", p.Reference)
	if approve {
		message = fmt.Sprintf("Your payment of %.2f has been approved. Subscription extended by 30 days.", p.Amount)
	}
	s.notify(ctx, p.CustomerID, title, message)

	return p, nil
}

// GetPayments возвращает историю платёжных заявок клиента.
func (s *Service) GetPayments(ctx context.Context, customerID int64) ([]model.PaymentRequest, error) {
	return s.repo.GetPaymentsByCustomer(ctx, customerID)
}

// ListPendingPayments возвращает платёжные заявки, ожидающие решения владельца.
func (s *Service) ListPendingPayments(ctx context.Context) ([]model.PaymentRequest, error) {
	return s.repo.ListPaymentsByStatus(ctx, model.StatusPending)
}

// SubmitMealRequest создаёт пожелание клиента по питанию.
func (s *Service) SubmitMealRequest(ctx context.Context, customerID int64, content string) (*model.MealRequest, error) {
	if content == "" {
		return nil, errors.New("meal request content must not be empty")
	}
	return s.repo.SubmitMealRequest(ctx, customerID, content, s.now())
}

// SettleMealRequest одобряет или отклоняет пожелание по питанию и
// уведомляет клиента о решении. Абонемент и кошелёк не затрагиваются.
func (s *Service) SettleMealRequest(ctx context.Context, requestID int64, approve bool) (*model.MealRequest, error) {
	m, err := s.repo.SettleMealRequest(ctx, requestID, approve)
	if err != nil {
		return nil, err
	}

	message := fmt.Sprintf("Your meal request %q has been rejected.", m.Content)
	if approve {
		message = fmt.Sprintf("Your meal request %q has been approved.", m.Content)
	}
	s.notify(ctx, m.CustomerID, "Meal Request Update", message)

	return m, nil
}

// GetMealRequests возвращает пожелания клиента по питанию.
func (s *Service) GetMealRequests(ctx context.Context, customerID int64) ([]model.MealRequest, error) {
	return s.repo.GetMealRequestsByCustomer(ctx, customerID)
}

// ListPendingMealRequests возвращает пожелания, ожидающие решения владельца.
func (s *Service) ListPendingMealRequests(ctx context.Context) ([]model.MealRequest, error) {
	return s.repo.ListMealRequestsByStatus(ctx, model.StatusPending)
}

// SubmitLeave создаёт заявку клиента на отпуск.
func (s *Service) SubmitLeave(ctx context.Context, customerID int64, startDate time.Time, days int, reason string) (*model.LeaveRequest, error) {
	if days <= 0 {
		return nil, errors.New("leave days must be positive")
	}
	if startDate.IsZero() {
		return nil, errors.New("leave start date must be set")
	}
	return s.repo.SubmitLeave(ctx, customerID, startDate, days, reason, s.now())
}

// SettleLeave одобряет или отклоняет заявку на отпуск. Одобрение продлевает
// действующий абонемент на число дней отпуска.
func (s *Service) SettleLeave(ctx context.Context, requestID int64, approve bool) (*model.LeaveRequest, error) {
	l, err := s.repo.SettleLeave(ctx, requestID, approve, s.now())
	if err != nil {
		return nil, err
	}

	message := "Your leave request has been rejected."
	if approve {
		message = fmt.Sprintf("Your leave request has been approved. Subscription extended by %d days.", l.Days)
	}
	s.notify(ctx, l.CustomerID, "Leave update", message)

	return l, nil
}

// GetLeaves возвращает заявки клиента на отпуск.
func (s *Service) GetLeaves(ctx context.Context, customerID int64) ([]model.LeaveRequest, error) {
	return s.repo.GetLeavesByCustomer(ctx, customerID)
}

// ListPendingLeaves возвращает заявки на отпуск, ожидающие решения владельца.
func (s *Service) ListPendingLeaves(ctx context.Context) ([]model.LeaveRequest, error) {
	return s.repo.ListLeavesByStatus(ctx, model.StatusPending)
}

// Report содержит сводную статистику для панели владельца.
type Report struct {
	Customers       int64
	MealsServed     int64
	MealsToday      int64
	Revenue         float64
	PendingPayments int64
	PendingLeaves   int64
}

// GetReport собирает сводную статистику на текущий момент.
func (s *Service) GetReport(ctx context.Context) (*Report, error) {
	stats, err := s.repo.Report(ctx, s.now())
	if err != nil {
		return nil, err
	}

	return &Report{
		Customers:       stats.Customers,
		MealsServed:     stats.MealsServed,
		MealsToday:      stats.MealsToday,
		Revenue:         float64(stats.RevenuePaise) / 100,
		PendingPayments: stats.PendingPayments,
		PendingLeaves:   stats.PendingLeaves,
	}, nil
}

// weekDays перечисляет допустимые дни меню в порядке недели.
var weekDays = map[string]bool{
	"Monday":    true,
	"Tuesday":   true,
	"Wednesday": true,
	"Thursday":  true,
	"Friday":    true,
	"Saturday":  true,
	"Sunday":    true,
}

// UpdateMenu создаёт или обновляет меню на день недели.
func (s *Service) UpdateMenu(ctx context.Context, entry model.MenuEntry) error {
	if !weekDays[entry.Day] {
		return fmt.Errorf("unknown menu day: %q", entry.Day)
	}
	return s.repo.UpsertMenuEntry(ctx, entry)
}

// GetMenu возвращает меню на неделю.
func (s *Service) GetMenu(ctx context.Context) ([]model.MenuEntry, error) {
	return s.repo.ListMenu(ctx)
}

// SendNotification сохраняет уведомление владельца: адресное или
// широковещательное при пустом получателе.
func (s *Service) SendNotification(ctx context.Context, title, message string, toCustomerID *int64) error {
	if title == "" || message == "" {
		return errors.New("notification title and message must not be empty")
	}
	return s.repo.CreateNotification(ctx, model.Notification{
		Title:        title,
		Message:      message,
		Date:         s.now(),
		ToCustomerID: toCustomerID,
	})
}

// GetNotifications возвращает уведомления клиента.
func (s *Service) GetNotifications(ctx context.Context, customerID int64) ([]model.Notification, error) {
	return s.repo.ListNotificationsForCustomer(ctx, customerID)
}

// SubmitFeedback сохраняет отзыв клиента.
func (s *Service) SubmitFeedback(ctx context.Context, customerID int64, content string) error {
	if content == "" {
		return errors.New("feedback content must not be empty")
	}
	return s.repo.CreateFeedback(ctx, model.Feedback{
		CustomerID: customerID,
		Content:    content,
		Date:       s.now(),
	})
}

// ListFeedback возвращает отзывы всех клиентов.
func (s *Service) ListFeedback(ctx context.Context) ([]model.Feedback, error) {
	return s.repo.ListFeedback(ctx)
}

// notify сохраняет уведомление и отправляет письмо клиенту.
// Оба действия не влияют на результат уже зафиксированной операции:
// ошибки здесь игнорируются.
func (s *Service) notify(ctx context.Context, customerID int64, title, message string) {
	_ = s.repo.CreateNotification(ctx, model.Notification{
		Title:        title,
		Message:      message,
		Date:         s.now(),
		ToCustomerID: &customerID,
	})

	if s.mailClient == nil {
		return
	}

	c, err := s.repo.GetCustomerByID(ctx, customerID)
	if err != nil || c.Email == "" {
		return
	}

	go func(to string) {
		sendCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.mailClient.Send(sendCtx, mailer.Message{
			To:      to,
			Subject: title,
			Body:    message,
		})
	}(c.Email)
}
