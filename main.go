package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"medstock/m/internal/api"
	"medstock/m/internal/auth"
	"medstock/m/internal/config"
	"medstock/m/internal/database"
	"medstock/m/internal/export"
	"medstock/m/internal/inventory"
	"medstock/m/internal/migrations"
	"medstock/m/internal/ratelimit"
	"medstock/m/internal/seed"
)

func main() {
	exportPath := flag.String("export", "", "write the database as SQL INSERT statements to this file and exit")
	seedCSV := flag.String("seed-csv", "", "import medicines from this CSV file and exit")
	seedEmail := flag.String("seed-email", "", "email of the user that owns imported medicines")
	flag.Parse()

	cfg := config.Load()
	logger := newLogger(cfg)

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrations.Run(ctx, db); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	history := inventory.NewHistoryLog(db)
	ledger := inventory.NewLedger(db, history, logger, inventory.WithDeletionAudit(cfg.AuditDeletions))

	switch {
	case *exportPath != "":
		file, err := os.Create(*exportPath)
		if err != nil {
			logger.Fatalf("Failed to create export file: %v", err)
		}
		counts, err := export.Dump(ctx, db, file, time.Now())
		if cerr := file.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			logger.Fatalf("Export failed: %v", err)
		}
		logger.WithFields(logrus.Fields{
			"file":      *exportPath,
			"users":     counts.Users,
			"medicines": counts.Medicines,
			"history":   counts.History,
			"total":     counts.Total(),
		}).Info("export written")
		return
	case *seedCSV != "":
		if *seedEmail == "" {
			logger.Fatal("-seed-email is required with -seed-csv")
		}
		if _, err := seed.LoadMedicinesFile(ctx, db, ledger, logger, *seedCSV, *seedEmail); err != nil {
			logger.Fatalf("Import failed: %v", err)
		}
		return
	}

	handler := api.New(api.Options{
		Credentials: auth.NewCredentialStore(db, auth.NewBcryptHasher(), logger),
		Sessions:    auth.NewAuthenticator(cfg.Secret, cfg.TokenTTL),
		Ledger:      ledger,
		History:     history,
		Limiter:     ratelimit.New(cfg.RateLimitSize, 15*time.Minute),
		DB:          db,
		Log:         logger,
		CORSOrigins: cfg.CORSOrigins,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("Medicine tracker server starting on :%s", cfg.HTTPPort)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server error: %v", err)
		}
		return
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
}

func newLogger(cfg config.Config) *logrus.Logger {
	logger := logrus.New()
	if cfg.LogFormat == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}
