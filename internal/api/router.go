package api

import (
	"net/http"
	"time"

	// This blank import is required by swaggo to find the API definitions.
	_ "github.com/anooppandey17/virtual-teacher/docs"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/anooppandey17/virtual-teacher/internal/model"
)

// Handlers groups the HTTP handlers mounted by NewRouter.
type Handlers struct {
	Conversations *ConversationHandler
	WS            *WSHandler
	Settings      *SettingsHandler
	Models        *ModelHandler
}

// RouterOptions configures the cross-cutting middleware.
type RouterOptions struct {
	Tokens         TokenParser
	Limiter        *RateLimiter
	AllowedOrigins []string
}

// NewRouter creates and configures a new chi router with all the
// application's routes.
func NewRouter(h Handlers, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/api/swagger/*", httpSwagger.WrapHandler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket clients cannot set headers, so the token comes in the query.
		r.With(AuthenticateQuery(opts.Tokens), opts.Limiter.Middleware).Get("/conversations/ws", h.WS.ServeWS)

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(opts.Tokens))

			// Plain JSON routes get a request timeout.
			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(60 * time.Second))

				r.Get("/conversations", h.Conversations.ListConversations)
				r.Get("/conversations/{conversationID}", h.Conversations.GetConversation)
				r.Delete("/conversations/{conversationID}", h.Conversations.DeleteConversation)
				r.Get("/conversations/{conversationID}/messages", h.Conversations.GetMessages)

				r.Group(func(r chi.Router) {
					r.Use(RequireRole(model.RoleAdmin))
					r.Get("/settings", h.Settings.GetSettings)
					r.Put("/settings", h.Settings.UpdateSettings)
					r.Get("/models", h.Models.HandleListModels)
				})
			})

			// Turn routes may stream, so they must not have a timeout.
			r.Group(func(r chi.Router) {
				r.Use(opts.Limiter.Middleware)
				r.Post("/conversations", h.Conversations.CreateConversation)
				r.Post("/conversations/{conversationID}/messages", h.Conversations.PostMessage)
			})
		})
	})

	return r
}
