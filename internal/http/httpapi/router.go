package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"groupshot/internal/http/handlers"
	"groupshot/internal/middleware"
)

type RouterOptions struct {
	Logger         zerolog.Logger
	CountryLookup  middleware.CountryLookup
	AllowedOrigins []string

	// StaticDir, when set, serves locally stored generated photos
	// under /static/.
	StaticDir string

	// GenerateLimit caps generation requests per client IP per minute.
	// Zero disables the limiter.
	GenerateLimit int
}

func NewRouter(app *handlers.App, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Country(opts.CountryLookup),
		middleware.Logger(opts.Logger),
	)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(opts.AllowedOrigins))
	}

	// Health
	r.Get("/v1/healthz", app.Health)

	r.Route("/groups/{id}", func(r chi.Router) {
		r.Get("/", app.GetGroup)
		r.Get("/jobs/latest", app.GetLatestJob)
		r.Get("/photos/archive", app.PhotoArchive)
		r.Group(func(r chi.Router) {
			if opts.GenerateLimit > 0 {
				r.Use(middleware.RateLimit(opts.GenerateLimit, time.Minute))
			}
			r.Post("/generate", app.GeneratePhoto)
		})
	})

	r.Post("/webhooks/astria", app.AstriaWebhook)

	if opts.StaticDir != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir)))
		r.Get("/static/*", fs.ServeHTTP)
	}

	return r
}
