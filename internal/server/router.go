// Package server assembles the HTTP API: public identity endpoints, the
// authenticated callable surface, and the middleware stack around them.
package server

import (
	"net/http"

	"github.com/casbin/casbin/v2"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Nyenzo/tule-initiative/internal/docstore"
	"github.com/Nyenzo/tule-initiative/internal/idp"
	"github.com/Nyenzo/tule-initiative/internal/middleware"
)

// RouterOptions carries everything the router needs to serve requests.
type RouterOptions struct {
	Provider       *idp.Provider
	Store          docstore.Store
	Enforcer       casbin.IEnforcer
	AllowedOrigins []string
	Debug          bool
}

// NewRouter builds the full API router.
func NewRouter(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	if opts.Debug {
		r.Use(chimiddleware.Logger)
	}
	r.Use(chimiddleware.Recoverer)

	allowed := opts.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Public identity endpoints: registration, token grants, revocation,
	// userinfo, JWKS.
	idp.NewHandler(opts.Provider).Register(r)

	// Authenticated callable surface.
	authn := middleware.NewAuthenticator(opts.Provider, nil)
	admin := NewAdminHandler(opts.Provider, opts.Enforcer)
	me := NewAuthHandler(opts.Provider)
	docs := NewDocumentHandler(opts.Store, opts.Provider)

	r.Group(func(g chi.Router) {
		g.Use(authn.Handler)
		g.Post("/v1/admin/grant-admin", admin.GrantAdmin)
		g.Get("/v1/whoami", me.WhoAmI)
		g.Get("/v1/documents/{collection}/{docID}", docs.Get)
		g.Put("/v1/documents/{collection}/{docID}", docs.Put)
	})

	return r
}
