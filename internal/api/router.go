package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"github.com/sirupsen/logrus"

	"noteflow/internal/api/handler"
	"noteflow/internal/api/middleware"
	"noteflow/internal/app/service"
	"noteflow/internal/common/security"
)

// Services bundles everything the HTTP surface calls into.
type Services struct {
	Auth        *service.AuthService
	Transcripts *service.TranscriptService
	Summaries   *service.SummaryService
	Notes       *service.NoteService
}

func NewRouter(svc Services, log *logrus.Entry) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	// Verifies a bearer token when present; middleware.Authenticator enforces it.
	r.Use(jwtauth.Verifier(security.TokenAuth))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Route("/users", handler.NewAuthHandler(svc.Auth).RegisterRoutes)
		v1.Route("/transcripts", handler.NewTranscriptHandler(svc.Transcripts).RegisterRoutes)
		v1.Route("/summaries", handler.NewSummaryHandler(svc.Summaries).RegisterRoutes)

		notes := handler.NewNoteHandler(svc.Notes)
		v1.Route("/notes", notes.RegisterNoteRoutes)
		v1.Route("/categories", notes.RegisterCategoryRoutes)
	})

	return r
}
