package rest

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/member-directory/internal/audit"
	"github.com/frahmantamala/member-directory/internal/auth"
	"github.com/frahmantamala/member-directory/internal/job"
	"github.com/frahmantamala/member-directory/internal/member"
	"github.com/frahmantamala/member-directory/internal/transport/middleware"
	"github.com/frahmantamala/member-directory/internal/transport/swagger"
	"github.com/go-chi/chi"
	"github.com/jmoiron/sqlx"
)

// RegisterAllRoutes wires every endpoint. Mutating member routes carry no
// permission middleware: the pipeline authorizes after validation and the
// uniqueness probe, so a request that is both invalid and unauthorized
// reports the validation failure. Reads have no validation stage and are
// gated up front.
func RegisterAllRoutes(router *chi.Mux, db *sqlx.DB, authHandler *auth.Handler, rbac *auth.RBACAuthorization, memberHandler *member.Handler, jobHandler *job.Handler, auditHandler *audit.Handler, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.CORS)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// OpenAPI document and swagger UI live outside the API prefix
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if authHandler != nil {
			r.Route("/auth", func(sr chi.Router) {
				sr.Post("/login", authHandler.Login)
				sr.Post("/refresh", authHandler.RefreshToken)
				sr.Post("/logout", authHandler.Logout)
			})
		}

		if authHandler == nil {
			return
		}

		r.Group(func(pr chi.Router) {
			pr.Use(authHandler.AuthMiddleware)

			pr.Get("/users/me", authHandler.GetCurrentUser)

			if memberHandler != nil {
				pr.Route("/members", func(mr chi.Router) {
					mr.With(rbac.Require(auth.PermMemberRead)).Get("/", memberHandler.List)
					mr.With(rbac.Require(auth.PermMemberRead)).Get("/{id}", memberHandler.GetByID)
					mr.Post("/", memberHandler.Register)
					mr.Patch("/{id}", memberHandler.Update)
					mr.Delete("/{id}", memberHandler.Delete)
				})
			}

			if jobHandler != nil {
				pr.Route("/jobs", func(jr chi.Router) {
					jr.With(rbac.Require(auth.PermJobRead)).Get("/", jobHandler.List)
					jr.With(rbac.Require(auth.PermJobRead)).Get("/{id}", jobHandler.GetByID)
					jr.With(rbac.Require(auth.PermJobManage)).Post("/", jobHandler.Submit)
					jr.With(rbac.Require(auth.PermJobManage)).Post("/{id}/cancel", jobHandler.Cancel)
				})
			}

			if auditHandler != nil {
				pr.With(rbac.Require(auth.PermAuditRead)).Get("/audit-logs", auditHandler.ListEntries)
			}
		})
	})
}
