package app

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sentinel/ledger/internal/auth"
	"github.com/sentinel/ledger/internal/guard"
	"github.com/sentinel/ledger/internal/handler"
	adminhandler "github.com/sentinel/ledger/internal/handler/admin"
	"github.com/sentinel/ledger/internal/infra"
	"github.com/sentinel/ledger/internal/ledger"
	"github.com/sentinel/ledger/internal/repository"
)

// DB is what the router needs from the connection pool. *pgxpool.Pool
// satisfies it.
type DB interface {
	repository.Pool
	infra.Pinger
}

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	DB      DB
	JWTMgr  *auth.JWTManager
	Logger  *slog.Logger
	Options ledger.Options

	// SpinLimiter throttles spin writes per caller. Nil builds one from
	// SpinRateLimit (per minute); the caller owns sweeping it.
	SpinLimiter   *guard.RateLimiter
	SpinRateLimit int

	// Idempotency remembers spin Idempotency-Keys. Nil builds one with
	// IdempotencyTTL (default 24h).
	Idempotency    *guard.IdempotencyGuard
	IdempotencyTTL time.Duration
}

// NewEngine wires the repositories into a ledger engine.
func NewEngine(db repository.Pool, logger *slog.Logger, opts ledger.Options) *ledger.Engine {
	return ledger.NewEngine(
		db,
		repository.NewUserRepository(),
		repository.NewSessionRepository(),
		repository.NewSpinRepository(),
		repository.NewOutboxRepository(),
		logger,
		opts,
	)
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	logger := deps.Logger
	jwtMgr := deps.JWTMgr

	engine := NewEngine(deps.DB, logger, deps.Options)

	limiter := deps.SpinLimiter
	if limiter == nil {
		limiter = guard.NewRateLimiter(deps.SpinRateLimit, time.Minute)
	}
	idem := deps.Idempotency
	if idem == nil {
		idem = guard.NewIdempotencyGuard(deps.IdempotencyTTL)
	}

	// Handlers
	userHandler := handler.NewUserHandler(engine)
	sessionHandler := handler.NewSessionHandler(engine)
	spinHandler := handler.NewSpinHandler(engine, limiter, idem)
	userAdmin := adminhandler.NewUserAdminHandler(engine, logger)

	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.JSONContentType)

	// Health (no auth)
	r.Get("/health", handler.HealthHandler(deps.DB))

	// Bot-authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.AuthenticateBot(jwtMgr))

		r.Route("/users", func(r chi.Router) {
			r.Post("/", userHandler.Register)
			r.Get("/{userID}", userHandler.Get)
			r.Get("/{userID}/sessions", userHandler.ListSessions)
			r.Get("/{userID}/sessions/active", userHandler.ActiveSession)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.Open)
			r.Get("/{sessionID}", sessionHandler.Get)
			r.Patch("/{sessionID}", sessionHandler.Update)
			r.Post("/{sessionID}/close", sessionHandler.Close)

			r.Post("/{sessionID}/spins", spinHandler.Record)
			r.Get("/{sessionID}/spins", spinHandler.History)
			r.Get("/{sessionID}/spins/last", spinHandler.LastNumbers)
			r.Get("/{sessionID}/spins/export", spinHandler.Export)
		})
	})

	// Admin-authenticated routes
	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.AuthenticateAdmin(jwtMgr))

		r.Route("/users", func(r chi.Router) {
			r.With(auth.RequireRole(auth.AllAdminRoles()...)).Get("/", userAdmin.ListUsers)
			r.With(auth.RequireRole(auth.WriteRoles()...)).Delete("/{userID}", userAdmin.DeleteUser)
		})
	})

	return r
}
