package auth

import (
	"log/slog"
	"net/http"
)

// RBACAuthorization gates HTTP routes on declared permissions. Handlers mount
// it per route group; the deny path reveals nothing beyond "forbidden".
type RBACAuthorization struct {
	evaluator *Evaluator
	logger    *slog.Logger
}

func NewRBACAuthorization(evaluator *Evaluator, logger *slog.Logger) *RBACAuthorization {
	return &RBACAuthorization{
		evaluator: evaluator,
		logger:    logger,
	}
}

func (ra *RBACAuthorization) Check(next http.HandlerFunc, required Permission) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok || user == nil {
			ra.logger.Warn("authorization check failed: user not found in context")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		if !ra.evaluator.AuthorizeUser(user, required) {
			ra.logger.WarnContext(r.Context(), "access denied: insufficient permissions",
				"user_id", user.ID,
				"required_permission", required.String())
			http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	}
}

// Require builds a chi-compatible middleware enforcing one permission.
func (ra *RBACAuthorization) Require(required Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return ra.Check(next.ServeHTTP, required)
	}
}

func (ra *RBACAuthorization) RequireAdmin() func(http.Handler) http.Handler {
	return ra.Require(PermSystemAdmin)
}
