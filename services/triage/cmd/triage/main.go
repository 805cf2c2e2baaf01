package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"medilink/internal/ratelimit"
	"medilink/internal/servicetoken"
	"medilink/internal/usertoken"
	"medilink/internal/util"
	"medilink/pkg/queue"
	"medilink/services/triage/internal/app"
	"medilink/services/triage/internal/config"
	"medilink/services/triage/internal/profileclient"
	"medilink/services/triage/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := util.InitLogger(cfg.LogLevel, "triage")

	var tokenVerifier *usertoken.Verifier
	if cfg.JWTSecret != "" {
		tokenVerifier, err = usertoken.NewVerifier(usertoken.Config{
			Secret:   cfg.JWTSecret,
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		})
		if err != nil {
			util.Fatal("failed to init token verifier", "err", err)
		}
	} else {
		logger.Warn("jwt secret not set, patient auth disabled")
	}

	var profiles app.HistoryFetcher
	if cfg.ProfileServiceURL != "" {
		signer, err := servicetoken.NewSigner(cfg.ServiceTokenSecret, "triage", 0)
		if err != nil {
			util.Fatal("failed to init service token signer", "err", err)
		}
		profiles = profileclient.NewClient(cfg.ProfileServiceURL, "profile", signer)
	} else {
		logger.Warn("profile service not configured, medical history disabled")
	}

	var analysisQueue app.AnalysisQueue
	var limiter *ratelimit.FixedWindowLimiter
	if cfg.RedisAddr != "" {
		q, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Stream:   cfg.AnalysisStream,
		})
		if err != nil {
			util.Fatal("failed to init analysis queue", "err", err)
		}
		analysisQueue = q
		if cfg.RateLimitPerMinute > 0 {
			limiter, err = ratelimit.NewRedisFixedWindowLimiter(
				cfg.RedisAddr, cfg.RedisPassword, "triage", cfg.RateLimitPerMinute, time.Minute)
			if err != nil {
				util.Fatal("failed to init rate limiter", "err", err)
			}
		}
	} else {
		logger.Warn("redis not configured, analysis events and rate limiting disabled")
	}

	appCore, err := app.New(app.Config{
		DatabaseURL: cfg.DatabaseURL,
		Provider:    cfg.LLMProvider,
		BaseURL:     cfg.LLMBaseURL,
		APIKey:      cfg.LLMAPIKey,
		Model:       cfg.GenerationModel,
		Profiles:    profiles,
		Queue:       analysisQueue,
	})
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}

	httpServer := server.New(server.Config{
		App:           appCore,
		TokenVerifier: tokenVerifier,
		Limiter:       limiter,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      util.WithRequestID(util.WithRequestLog("triage", httpServer.Router())),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("triage server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
