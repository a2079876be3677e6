package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/messops/mess-system/internal/middleware"
	"github.com/messops/mess-system/internal/model"
	"github.com/messops/mess-system/internal/repository"
	"github.com/messops/mess-system/internal/service"
)

type stubService struct {
	registerID    int64
	registerToken string
	registerErr   error

	authCustomer *model.Customer
	authErr      error

	customerResp *model.Customer
	customerErr  error

	customersResp []model.Customer
	customersErr  error

	deleteErr error

	admitResp *model.AdmissionResult
	admitErr  error

	attendanceResp []model.AttendanceRecord
	attendanceErr  error

	subscriptionResp *service.SubscriptionStatus
	subscriptionErr  error

	submitPaymentResp *model.PaymentRequest
	submitPaymentErr  error

	settlePaymentResp *model.PaymentRequest
	settlePaymentErr  error

	paymentsResp []model.PaymentRequest
	paymentsErr  error

	submitLeaveResp *model.LeaveRequest
	submitLeaveErr  error

	submitMealRequestResp *model.MealRequest
	submitMealRequestErr  error

	settleMealRequestResp *model.MealRequest
	settleMealRequestErr  error

	mealRequestsResp []model.MealRequest
	mealRequestsErr  error

	settleLeaveResp *model.LeaveRequest
	settleLeaveErr  error

	leavesResp []model.LeaveRequest
	leavesErr  error

	reportResp *service.Report
	reportErr  error

	menuResp []model.MenuEntry
	menuErr  error

	updateMenuErr error

	notifyErr error

	notificationsResp []model.Notification
	notificationsErr  error

	feedbackErr error

	feedbackListResp []model.Feedback
	feedbackListErr  error
}

func (s *stubService) RegisterCustomer(ctx context.Context, reg service.Registration) (int64, string, error) {
	return s.registerID, s.registerToken, s.registerErr
}

func (s *stubService) AuthenticateCustomer(ctx context.Context, username, password string) (*model.Customer, error) {
	return s.authCustomer, s.authErr
}

func (s *stubService) GetCustomer(ctx context.Context, id int64) (*model.Customer, error) {
	return s.customerResp, s.customerErr
}

func (s *stubService) ListCustomers(ctx context.Context, search string) ([]model.Customer, error) {
	return s.customersResp, s.customersErr
}

func (s *stubService) DeleteAccount(ctx context.Context, customerID int64) error {
	return s.deleteErr
}

func (s *stubService) AdmitMeal(ctx context.Context, memberRef, mealType string) (*model.AdmissionResult, error) {
	return s.admitResp, s.admitErr
}

func (s *stubService) GetAttendance(ctx context.Context, customerID int64) ([]model.AttendanceRecord, error) {
	return s.attendanceResp, s.attendanceErr
}

func (s *stubService) GetSubscriptionStatus(ctx context.Context, customerID int64) (*service.SubscriptionStatus, error) {
	return s.subscriptionResp, s.subscriptionErr
}

func (s *stubService) SubmitPayment(ctx context.Context, customerID int64, reference string) (*model.PaymentRequest, error) {
	return s.submitPaymentResp, s.submitPaymentErr
}

func (s *stubService) SettlePayment(ctx context.Context, requestID int64, approve bool) (*model.PaymentRequest, error) {
	return s.settlePaymentResp, s.settlePaymentErr
}

func (s *stubService) GetPayments(ctx context.Context, customerID int64) ([]model.PaymentRequest, error) {
	return s.paymentsResp, s.paymentsErr
}

func (s *stubService) ListPendingPayments(ctx context.Context) ([]model.PaymentRequest, error) {
	return s.paymentsResp, s.paymentsErr
}

func (s *stubService) SubmitMealRequest(ctx context.Context, customerID int64, content string) (*model.MealRequest, error) {
	return s.submitMealRequestResp, s.submitMealRequestErr
}

func (s *stubService) SettleMealRequest(ctx context.Context, requestID int64, approve bool) (*model.MealRequest, error) {
	return s.settleMealRequestResp, s.settleMealRequestErr
}

func (s *stubService) GetMealRequests(ctx context.Context, customerID int64) ([]model.MealRequest, error) {
	return s.mealRequestsResp, s.mealRequestsErr
}

func (s *stubService) ListPendingMealRequests(ctx context.Context) ([]model.MealRequest, error) {
	return s.mealRequestsResp, s.mealRequestsErr
}

func (s *stubService) SubmitLeave(ctx context.Context, customerID int64, startDate time.Time, days int, reason string) (*model.LeaveRequest, error) {
	return s.submitLeaveResp, s.submitLeaveErr
}

func (s *stubService) SettleLeave(ctx context.Context, requestID int64, approve bool) (*model.LeaveRequest, error) {
	return s.settleLeaveResp, s.settleLeaveErr
}

func (s *stubService) GetLeaves(ctx context.Context, customerID int64) ([]model.LeaveRequest, error) {
	return s.leavesResp, s.leavesErr
}

func (s *stubService) ListPendingLeaves(ctx context.Context) ([]model.LeaveRequest, error) {
	return s.leavesResp, s.leavesErr
}

func (s *stubService) GetReport(ctx context.Context) (*service.Report, error) {
	return s.reportResp, s.reportErr
}

func (s *stubService) UpdateMenu(ctx context.Context, entry model.MenuEntry) error {
	return s.updateMenuErr
}

func (s *stubService) GetMenu(ctx context.Context) ([]model.MenuEntry, error) {
	return s.menuResp, s.menuErr
}

func (s *stubService) SendNotification(ctx context.Context, title, message string, toCustomerID *int64) error {
	return s.notifyErr
}

func (s *stubService) GetNotifications(ctx context.Context, customerID int64) ([]model.Notification, error) {
	return s.notificationsResp, s.notificationsErr
}

func (s *stubService) SubmitFeedback(ctx context.Context, customerID int64, content string) error {
	return s.feedbackErr
}

func (s *stubService) ListFeedback(ctx context.Context) ([]model.Feedback, error) {
	return s.feedbackListResp, s.feedbackListErr
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")

	return NewHandler(svc, logger, auth)
}

func authCookie(t *testing.T, h *Handler, ident middleware.Identity) *http.Cookie {
	t.Helper()

	rec := httptest.NewRecorder()
	h.authMiddleware.SetAuthCookie(rec, ident)

	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("no cookies set by SetAuthCookie")
	}
	return cookies[0]
}

func TestRegister_Success(t *testing.T) {
	svc := &stubService{
		registerID:    7,
		registerToken: "A7",
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(registerRequest{
		Username: "ravi",
		Password: "Secret12",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp registerResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.MemberToken != "A7" {
		t.Fatalf("member token = %q, want A7", resp.MemberToken)
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	svc := &stubService{
		registerErr: repository.ErrCustomerExists,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(registerRequest{
		Username: "ravi",
		Password: "Secret12",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	if rec.Result().StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusConflict)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc := &stubService{
		authErr: service.ErrInvalidCredentials,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{
		Username: "ravi",
		Password: "wrong",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestLogin_SetsAuthCookie(t *testing.T) {
	svc := &stubService{
		authCustomer: &model.Customer{
			ID:          3,
			Username:    "ravi",
			Role:        model.RoleCustomer,
			MemberToken: "A3",
		},
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{
		Username: "ravi",
		Password: "Secret12",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if len(res.Cookies()) == 0 {
		t.Fatalf("auth cookie not set on login")
	}
}

func TestScan_Success(t *testing.T) {
	svc := &stubService{
		admitResp: &model.AdmissionResult{
			CustomerName: "ravi",
			Balance:      1520,
			Message:      "Marked lunch for ravi",
		},
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(scanRequest{MemberRef: "A3", MealType: "lunch"})

	req := httptest.NewRequest(http.MethodPost, "/api/owner/scan", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Scan(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp scanResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Fatalf("success = false, want true")
	}
	if resp.Username != "ravi" {
		t.Fatalf("username = %q, want ravi", resp.Username)
	}
}

func TestScan_DenialStatuses(t *testing.T) {
	tests := []struct {
		name       string
		admitErr   error
		wantStatus int
	}{
		{name: "unknown member", admitErr: repository.ErrUnknownMember, wantStatus: http.StatusNotFound},
		{name: "subscription expired", admitErr: repository.ErrSubscriptionExpired, wantStatus: http.StatusForbidden},
		{name: "daily limit", admitErr: repository.ErrDailyLimitReached, wantStatus: http.StatusConflict},
		{name: "duplicate meal", admitErr: repository.ErrDuplicateMeal, wantStatus: http.StatusConflict},
		{name: "insufficient balance", admitErr: repository.ErrInsufficientBalance, wantStatus: http.StatusPaymentRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &stubService{admitErr: tt.admitErr})

			body, _ := json.Marshal(scanRequest{MemberRef: "A3", MealType: "lunch"})

			req := httptest.NewRequest(http.MethodPost, "/api/owner/scan", bytes.NewReader(body))
			rec := httptest.NewRecorder()

			h.Scan(rec, req)

			res := rec.Result()
			if res.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.wantStatus)
			}

			var resp scanResponse
			if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Success {
				t.Fatalf("success = true, want false")
			}
			if resp.Error == "" {
				t.Fatalf("error message is empty")
			}
		})
	}
}

func TestScan_ZeroBalanceBirthday(t *testing.T) {
	svc := &stubService{
		admitResp: &model.AdmissionResult{
			CustomerName: "ravi",
			Balance:      0,
			Birthday:     true,
			Message:      "Happy Birthday! Meal is free.",
		},
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(scanRequest{MemberRef: "A3", MealType: "lunch"})

	req := httptest.NewRequest(http.MethodPost, "/api/owner/scan", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Scan(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	// Нулевой баланс не выпадает из ответа: оператор всегда его видит.
	if !strings.Contains(string(raw), `"balance":0`) {
		t.Fatalf("response %q does not carry balance field", string(raw))
	}

	var resp scanResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Fatalf("success = false, want true")
	}
	if resp.Balance != 0 {
		t.Fatalf("balance = %v, want 0", resp.Balance)
	}
}

func TestSubmitMealRequest_EmptyContent(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	body, _ := json.Marshal(mealRequestBody{Content: ""})

	req := httptest.NewRequest(http.MethodPost, "/api/customer/meal-requests", bytes.NewReader(body))
	req.AddCookie(authCookie(t, h, middleware.Identity{CustomerID: 1, Role: model.RoleCustomer}))

	rec := httptest.NewRecorder()
	h.authMiddleware.Middleware(http.HandlerFunc(h.SubmitMealRequest)).ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestSettleMealRequest_AlreadySettled(t *testing.T) {
	svc := &stubService{
		settleMealRequestErr: repository.ErrAlreadySettled,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(settleRequest{Approve: true})

	r := h.SetupRouter()
	req := httptest.NewRequest(http.MethodPost, "/api/owner/meal-requests/3/settle", bytes.NewReader(body))
	req.AddCookie(authCookie(t, h, middleware.Identity{CustomerID: 1, Role: model.RoleOwner}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusConflict)
	}
}

func TestGetPayments_NoContent(t *testing.T) {
	svc := &stubService{
		paymentsResp: []model.PaymentRequest{},
	}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/customer/payments", nil)
	req.AddCookie(authCookie(t, h, middleware.Identity{CustomerID: 1, Role: model.RoleCustomer}))

	rec := httptest.NewRecorder()
	h.authMiddleware.Middleware(http.HandlerFunc(h.GetPayments)).ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusNoContent)
	}
}

func TestSubmitPayment_DuplicateReference(t *testing.T) {
	svc := &stubService{
		submitPaymentErr: repository.ErrDuplicatePending,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(paymentRequestBody{Reference: "UPI-1"})

	req := httptest.NewRequest(http.MethodPost, "/api/customer/payments", bytes.NewReader(body))
	req.AddCookie(authCookie(t, h, middleware.Identity{CustomerID: 1, Role: model.RoleCustomer}))

	rec := httptest.NewRecorder()
	h.authMiddleware.Middleware(http.HandlerFunc(h.SubmitPayment)).ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusConflict)
	}
}

func TestSettlePayment_AlreadySettled(t *testing.T) {
	svc := &stubService{
		settlePaymentErr: repository.ErrAlreadySettled,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(settleRequest{Approve: true})

	r := h.SetupRouter()
	req := httptest.NewRequest(http.MethodPost, "/api/owner/payments/5/settle", bytes.NewReader(body))
	req.AddCookie(authCookie(t, h, middleware.Identity{CustomerID: 1, Role: model.RoleOwner}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusConflict)
	}
}

func TestOwnerRoutes_ForbiddenForCustomer(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	r := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/owner/report", nil)
	req.AddCookie(authCookie(t, h, middleware.Identity{CustomerID: 2, Role: model.RoleCustomer}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusForbidden)
	}
}

func TestGetSubscription_JSONResponse(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

	svc := &stubService{
		subscriptionResp: &service.SubscriptionStatus{
			Subscription: &model.Subscription{
				StartDate: start,
				EndDate:   end,
				Active:    true,
			},
			Valid:         true,
			DaysRemaining: 15,
		},
	}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/customer/subscription", nil)
	req.AddCookie(authCookie(t, h, middleware.Identity{CustomerID: 1, Role: model.RoleCustomer}))

	rec := httptest.NewRecorder()
	h.authMiddleware.Middleware(http.HandlerFunc(h.GetSubscription)).ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}

	var resp subscriptionResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Active {
		t.Fatalf("active = false, want true")
	}
	if resp.DaysRemaining != 15 {
		t.Fatalf("days remaining = %d, want 15", resp.DaysRemaining)
	}
	if resp.EndDate == nil || *resp.EndDate != "2025-06-30" {
		t.Fatalf("end date = %v, want 2025-06-30", resp.EndDate)
	}
}

func TestSettleLeave_NoActiveSubscription(t *testing.T) {
	svc := &stubService{
		settleLeaveErr: repository.ErrNoActiveSubscription,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(settleRequest{Approve: true})

	r := h.SetupRouter()
	req := httptest.NewRequest(http.MethodPost, "/api/owner/leaves/9/settle", bytes.NewReader(body))
	req.AddCookie(authCookie(t, h, middleware.Identity{CustomerID: 1, Role: model.RoleOwner}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusConflict)
	}
}
