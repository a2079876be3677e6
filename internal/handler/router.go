package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/messops/mess-system/internal/middleware"
	"github.com/messops/mess-system/internal/model"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса столовой.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/logout", h.Logout)
		})

		r.Route("/customer", func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/profile", h.GetProfile)
			r.Delete("/account", h.DeleteAccount)
			r.Get("/qr", h.GetQRPayload)

			r.Get("/subscription", h.GetSubscription)
			r.Get("/attendance", h.GetAttendance)

			r.Get("/payments", h.GetPayments)
			r.Post("/payments", h.SubmitPayment)

			r.Get("/leaves", h.GetLeaves)
			r.Post("/leaves", h.SubmitLeave)

			r.Get("/meal-requests", h.GetMealRequests)
			r.Post("/meal-requests", h.SubmitMealRequest)

			r.Get("/notifications", h.GetNotifications)
			r.Get("/menu", h.GetMenu)
			r.Post("/feedback", h.SubmitFeedback)
		})

		r.Route("/owner", func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)
			r.Use(custommiddleware.RequireRole(model.RoleOwner))

			r.Post("/scan", h.Scan)

			r.Get("/customers", h.ListCustomers)
			r.Get("/customers/{id}", h.GetCustomerByID)

			r.Get("/payments/pending", h.ListPendingPayments)
			r.Post("/payments/{id}/settle", h.SettlePayment)

			r.Get("/leaves/pending", h.ListPendingLeaves)
			r.Post("/leaves/{id}/settle", h.SettleLeave)

			r.Get("/meal-requests/pending", h.ListPendingMealRequests)
			r.Post("/meal-requests/{id}/settle", h.SettleMealRequest)

			r.Get("/report", h.GetReport)
			r.Post("/menu", h.UpdateMenu)
			r.Post("/notifications", h.SendNotification)
			r.Get("/feedback", h.ListFeedback)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
