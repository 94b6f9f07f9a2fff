package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/balancesheet/backend/docs"
	"github.com/balancesheet/backend/internal/database"
	mW "github.com/balancesheet/backend/internal/middleware"
	"github.com/balancesheet/backend/internal/services"
)

// @title Balance Sheet API
// @version 1.0
// @description Double-entry accounting API for small-business bookkeeping
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	// Initialize config
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("scheduler.tick_interval", "SCHEDULER_TICK_INTERVAL")
	viper.BindEnv("seed_demo_data", "SEED_DEMO_DATA")

	viper.SetDefault("scheduler.tick_interval", time.Hour)

	if err := viper.ReadInConfig(); err != nil {
		log.Info().Err(err).Msg("config file not found, using defaults")
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "Balance Sheet API"
	docs.SwaggerInfo.Description = "Double-entry accounting API for small-business bookkeeping"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	if viper.GetBool("seed_demo_data") {
		if err := database.SeedDemoData(db); err != nil {
			log.Error().Err(err).Msg("failed to seed demo data")
		}
	}

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	ledgerService := services.NewLedgerService(db)
	accountService := services.NewAccountService(db)
	companyService := services.NewCompanyService(db)
	templateService := services.NewTemplateService(db)
	customerService := services.NewCustomerService(db)
	productService := services.NewProductService(db)
	invoiceService := services.NewInvoiceService(db, ledgerService)
	paymentService := services.NewPaymentService(db, ledgerService)
	recurringService := services.NewRecurringService(db, ledgerService, redisClient)
	reportService := services.NewReportService(db, ledgerService)
	cashFlowService := services.NewCashFlowService(db)

	// Recurring scheduler
	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	go recurringService.Run(schedulerCtx, viper.GetDuration("scheduler.tick_interval"))

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Company-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes, all scoped to the company named in the X-Company-ID header
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mW.CompanyScope)

		r.Get("/companies/{id}", companyService.GetCompany)
		r.Put("/companies/{id}", companyService.UpdateCompany)

		r.Get("/accounts", accountService.ListAccounts)
		r.Post("/accounts", accountService.CreateAccount)

		r.Get("/transactions", ledgerService.ListTransactions)
		r.Post("/transactions", ledgerService.CreateTransaction)

		r.Get("/templates", templateService.ListTemplates)
		r.Post("/templates", templateService.CreateTemplate)
		r.Delete("/templates/{id}", templateService.DeleteTemplate)

		r.Get("/customers", customerService.ListCustomers)
		r.Post("/customers", customerService.CreateCustomer)

		r.Get("/products", productService.ListProducts)
		r.Post("/products", productService.CreateProduct)

		r.Get("/invoices", invoiceService.ListInvoices)
		r.Post("/invoices", invoiceService.CreateInvoice)
		r.Put("/invoices/{id}", invoiceService.UpdateInvoice)
		r.Post("/invoices/{id}/approve", invoiceService.ApproveInvoice)
		r.Get("/invoices/{id}/payments", invoiceService.ListInvoicePayments)

		r.Get("/payments", paymentService.ListPayments)
		r.Post("/payments", paymentService.RecordPayment)

		r.Get("/recurring", recurringService.ListRecurringItems)
		r.Post("/recurring", recurringService.CreateRecurringItem)
		r.Delete("/recurring/{id}", recurringService.DeleteRecurringItem)

		r.Get("/reports/trial-balance", reportService.TrialBalance)
		r.Get("/reports/pnl", reportService.ProfitAndLoss)
		r.Get("/reports/general-ledger/{accountId}", reportService.GeneralLedger)
		r.Get("/financial-position/detailed", reportService.DetailedFinancialPosition)

		r.Get("/cash-flow/history", cashFlowService.History)
		r.Get("/cash-flow/forecast", cashFlowService.Forecast)
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Str("port", port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("server shutting down")
	stopScheduler()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
