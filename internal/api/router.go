package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ndewijer/SPV-Distribution-Engine/internal/api/handlers"
	custommiddleware "github.com/ndewijer/SPV-Distribution-Engine/internal/api/middleware"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/config"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/metrics"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/service"
)

// Services bundles the services the router exposes.
type Services struct {
	System        *service.SystemService
	Distributions *service.DistributionService
	Approvals     *service.ApprovalService
	Payments      *service.PaymentService
	Ledger        *service.LedgerService
}

// NewRouter creates and configures the HTTP router
func NewRouter(svc Services, cfg *config.Config, log *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(custommiddleware.Logger(log))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	// CORS middleware
	corsMiddleware := custommiddleware.NewCORS(cfg.CORS.AllowedOrigins)
	r.Use(corsMiddleware.Handler)

	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		// System namespace
		r.Route("/system", func(r chi.Router) {
			systemHandler := handlers.NewSystemHandler(svc.System)
			r.Get("/health", systemHandler.Health)
			r.Get("/version", systemHandler.Version)
		})

		r.Route("/distribution", func(r chi.Router) {
			distributionHandler := handlers.NewDistributionHandler(svc.Distributions, svc.Approvals)
			paymentHandler := handlers.NewPaymentHandler(svc.Payments)

			r.Get("/", distributionHandler.ListDistributions)
			r.Post("/", distributionHandler.CalculateDistribution)

			r.Route("/{uuid}", func(r chi.Router) {
				r.Use(custommiddleware.ValidateUUIDMiddleware)
				r.Get("/", distributionHandler.GetDistribution)
				r.Put("/", distributionHandler.EditDistribution)
				r.Post("/calculate", distributionHandler.RecalculateDistribution)
				r.Post("/approve", distributionHandler.ApproveDistribution)
				r.Post("/cancel", distributionHandler.CancelDistribution)

				r.Get("/bank-batch.csv", paymentHandler.BankBatchCSV)
				r.Get("/bank-batch.xlsx", paymentHandler.BankBatchXLSX)

				r.Route("/payments", func(r chi.Router) {
					r.Post("/submit", paymentHandler.SubmitBatch)
					r.Post("/retry", paymentHandler.RetryFailed)
					r.Get("/batches", paymentHandler.ListBatches)
					r.Post("/import", paymentHandler.ImportConfirmations)
					r.Get("/template.csv", paymentHandler.ConfirmationTemplate)
					r.Post("/{investorId}", paymentHandler.MarkPaid)
				})
			})
		})

		r.Route("/investor/{uuid}", func(r chi.Router) {
			r.Use(custommiddleware.ValidateUUIDMiddleware)
			ledgerHandler := handlers.NewLedgerHandler(svc.Ledger)
			r.Get("/transactions", ledgerHandler.TransactionHistory)
		})
	})

	return r
}
