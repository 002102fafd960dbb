package audit

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/frahmantamala/member-directory/internal/transport"
	"github.com/frahmantamala/member-directory/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	repo RepositoryAPI
}

func NewHandler(repo RepositoryAPI) *Handler {
	lg := logger.L()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		repo:        repo,
	}
}

// ListEntries serves the read-only audit trail. Write access does not exist;
// entries are append-only and owned by the emitter.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	params := ListParams{
		Action:     r.URL.Query().Get("action"),
		EntityType: r.URL.Query().Get("entity_type"),
		Limit:      20,
	}

	if status := r.URL.Query().Get("status"); status != "" {
		params.Status = Status(status)
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			params.Limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			params.Offset = o
		}
	}

	entries, err := h.repo.List(params)
	if err != nil {
		h.Logger.Error("ListEntries: failed to query audit log", "error", err)
		h.WriteError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"limit":   params.Limit,
		"offset":  params.Offset,
	})
}
