package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"database/sql"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/mlebedev/payflow/internal/config"
	"github.com/mlebedev/payflow/internal/handler"
	"github.com/mlebedev/payflow/internal/middleware"
	"github.com/mlebedev/payflow/internal/repository"
	"github.com/mlebedev/payflow/internal/service"
	"github.com/mlebedev/payflow/internal/utils/email"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	// Initialize layers
	repo := repository.NewRepository(db)
	if err := repo.Migrate(context.Background()); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	sender := email.NewSender(cfg, logger)
	svc := service.NewService(repo, logger, cfg, sender)
	h := handler.NewHandler(svc)

	// Setup router
	r := mux.NewRouter()
	// Public routes
	r.HandleFunc("/register", h.Register).Methods("POST")
	r.HandleFunc("/login", h.Login).Methods("POST")
	r.HandleFunc("/payments/execute", h.ExecutePayments).Methods("POST")
	r.HandleFunc("/accounts/{account}/balance", h.GetBalance).Methods("GET")
	r.HandleFunc("/accounts/{account}/schedules", h.GetSchedules).Methods("GET")
	r.HandleFunc("/accounts/{account}/schedules/{index}", h.GetSchedule).Methods("GET")
	r.HandleFunc("/accounts/{account}/transactions/last", h.GetLastTransaction).Methods("GET")
	r.HandleFunc("/accounts/{account}/statement", h.GetStatement).Methods("GET")
	r.HandleFunc("/health", h.Health).Methods("GET")
	// Protected routes
	authRouter := r.PathPrefix("/").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(cfg))
	authRouter.HandleFunc("/deposit", h.Deposit).Methods("POST")
	authRouter.HandleFunc("/schedules", h.AddSchedule).Methods("POST")
	authRouter.HandleFunc("/schedules/{index}", h.CancelSchedule).Methods("DELETE")

	// Periodic settlement trigger
	if cfg.SettleCron != "" {
		c := cron.New()
		_, err := c.AddFunc(cfg.SettleCron, func() {
			if _, err := svc.ExecutePayments(context.Background()); err != nil {
				logger.Errorf("Scheduled settlement failed: %v", err)
			}
		})
		if err != nil {
			logger.Fatalf("Invalid SETTLE_CRON expression: %v", err)
		}
		c.Start()
		defer c.Stop()
		logger.Infof("Settlement cron enabled: %s", cfg.SettleCron)
	}

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	logger.Infof("Starting server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}
