package handlers

import (
	"context"
	"log"
	"net/http"

	syncengine "github.com/helio-ops/solsyncbackend/sync"
)

// SyncHandler exposes the coordinator's connectivity status and a manual
// reconciliation trigger.
type SyncHandler struct {
	Coordinator *syncengine.Coordinator
}

type syncStatusResponse struct {
	Status string `json:"status"`
}

func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, syncStatusResponse{Status: h.Coordinator.Status().String()})
}

// RunSync kicks off a push+pull reconciliation in the background. The
// request returns immediately; progress is observable via /sync/status and
// the websocket feed.
func (h *SyncHandler) RunSync(w http.ResponseWriter, r *http.Request) {
	go func() {
		log.Println("handlers: manual reconciliation requested")
		// detached from the request context; the pass outlives the response
		h.Coordinator.RunOnce(context.Background())
	}()
	WriteJSON(w, http.StatusAccepted, syncStatusResponse{Status: h.Coordinator.Status().String()})
}
