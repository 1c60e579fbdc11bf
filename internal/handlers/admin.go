package handlers

import (
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/pool-service/internal/db"
)

// AdminHandler serves data diagnostics under /api/admin.
type AdminHandler struct {
	pools db.PoolCollection
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(pools db.PoolCollection) *AdminHandler {
	return &AdminHandler{pools: pools}
}

// OrphanedPools lists pools whose client no longer exists.
func (h *AdminHandler) OrphanedPools(w http.ResponseWriter, r *http.Request) {
	pools, err := h.pools.FindOrphanedPools(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	if len(pools) > 0 {
		log.WithField("count", len(pools)).Warn("Orphaned pools found")
	}
	respond(w, http.StatusOK, map[string]interface{}{
		"pools": pools,
		"count": len(pools),
	})
}
