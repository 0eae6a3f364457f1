package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"medstock/m/domain"
	"medstock/m/internal/auth"
	"medstock/m/internal/inventory"
	"medstock/m/internal/ratelimit"
)

// Credentials is the registration/login store.
type Credentials interface {
	Register(ctx context.Context, username, email, password string) (*domain.User, error)
	VerifyCredentials(ctx context.Context, email, password string) (*domain.User, error)
}

// Sessions issues and verifies bearer tokens.
type Sessions interface {
	Issue(user *domain.User) (string, error)
	Verify(token string) (*auth.Claims, error)
}

// Ledger mutates owner-scoped medicine stock.
type Ledger interface {
	List(ctx context.Context, ownerID int64) ([]domain.Medicine, error)
	Add(ctx context.Context, ownerID int64, in inventory.NewMedicine) (*domain.Medicine, error)
	Restock(ctx context.Context, ownerID, medicineID, quantity int64, notes string) (*domain.Medicine, error)
	Consume(ctx context.Context, ownerID, medicineID int64) (*domain.Medicine, error)
	Remove(ctx context.Context, ownerID, medicineID int64) (string, error)
}

// History reads the owner's audit trail.
type History interface {
	List(ctx context.Context, ownerID int64) ([]domain.HistoryEntry, error)
}

// Pinger reports whether the store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Options bundles dependencies for HTTP handlers.
type Options struct {
	Credentials Credentials
	Sessions    Sessions
	Ledger      Ledger
	History     History
	Limiter     *ratelimit.Limiter
	DB          Pinger
	Log         logrus.FieldLogger
	CORSOrigins []string
}

// Handler is the request gateway: it authenticates callers and translates domain
// outcomes into the JSON envelope.
type Handler struct {
	credentials Credentials
	sessions    Sessions
	ledger      Ledger
	history     History
	limiter     *ratelimit.Limiter
	db          Pinger
	log         logrus.FieldLogger
	origins     []string
	now         func() time.Time
}

// New constructs a Handler.
func New(opts Options) *Handler {
	return &Handler{
		credentials: opts.Credentials,
		sessions:    opts.Sessions,
		ledger:      opts.Ledger,
		history:     opts.History,
		limiter:     opts.Limiter,
		db:          opts.DB,
		log:         opts.Log,
		origins:     opts.CORSOrigins,
		now:         time.Now,
	}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: h.log, NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With"},
		AllowCredentials: true,
	}))
	r.Use(middleware.SetHeader("X-Content-Type-Options", "nosniff"))
	r.Use(middleware.SetHeader("X-Frame-Options", "DENY"))
	r.Use(middleware.SetHeader("Referrer-Policy", "no-referrer"))
	r.Use(middleware.SetHeader("Content-Security-Policy", "default-src 'self'; object-src 'none'; frame-src 'none'"))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.health)

		r.Route("/auth", func(r chi.Router) {
			r.With(h.rateLimit(ratelimit.Register, "too many registration attempts, please try again in 15 minutes")).
				Post("/register", h.register)
			r.With(h.rateLimit(ratelimit.Login, "too many login attempts, please try again in 15 minutes")).
				Post("/login", h.login)
			r.With(h.authMiddleware).Get("/me", h.me)
		})

		r.Group(func(pr chi.Router) {
			pr.Use(h.authMiddleware)

			pr.Route("/medicines", func(r chi.Router) {
				r.Get("/", h.listMedicines)
				r.Post("/", h.addMedicine)
				r.Put("/{id}/add-stock", h.addStock)
				r.Put("/{id}", h.updateMedicine)
				r.Delete("/{id}", h.deleteMedicine)
			})

			pr.Get("/history", h.listHistory)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	database := "ok"
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			h.log.WithError(err).Warn("health check: database ping failed")
			database = "down"
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "Server is running with authentication",
		"timestamp": h.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		"database":  database,
	})
}
