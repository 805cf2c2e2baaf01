package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"medilink/internal/servicetoken"
	"medilink/internal/util"
	"medilink/services/profile/internal/app"
	"medilink/services/profile/internal/config"
	"medilink/services/profile/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := util.InitLogger(cfg.LogLevel, "profile")

	var tokenVerifier *servicetoken.Verifier
	if cfg.ServiceTokenSecret != "" {
		callers := cfg.AllowedCallers
		if len(callers) == 0 {
			callers = []string{"triage"}
		}
		tokenVerifier, err = servicetoken.NewVerifier(cfg.ServiceTokenSecret, "profile", callers, 0)
		if err != nil {
			util.Fatal("failed to init service token verifier", "err", err)
		}
	} else {
		logger.Warn("service token secret not set, internal auth disabled")
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:    cfg.DatabaseURL,
		MinioEndpoint:  cfg.MinioEndpoint,
		MinioAccessKey: cfg.MinioAccessKey,
		MinioSecretKey: cfg.MinioSecretKey,
		MinioBucket:    cfg.MinioBucket,
		MinioUseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}

	httpServer := server.New(server.Config{
		App:           appCore,
		TokenVerifier: tokenVerifier,
		MaxUploadSize: cfg.MaxUploadBytes,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      util.WithRequestID(util.WithRequestLog("profile", httpServer.Router())),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("profile server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
