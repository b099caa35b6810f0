package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// streamInterval is how often progress is pushed to stream subscribers
const streamInterval = 250 * time.Millisecond

// progressMessage is one frame of the progress stream
type progressMessage struct {
	Type            string      `json:"type"` // "progress" or "finished"
	RunID           string      `json:"run_id"`
	Status          string      `json:"status"`
	CompletedTrials int         `json:"completed_trials"`
	TotalTrials     int         `json:"total_trials"`
	Progress        float64     `json:"progress"`
	Report          interface{} `json:"report,omitempty"`
	Rating          interface{} `json:"rating,omitempty"`
	Error           string      `json:"error,omitempty"`
}

// HandleStream handles GET /api/simulations/{id}/stream. It upgrades to a
// WebSocket, pushes progress frames until the run is terminal, sends one
// final frame with the report and rating, then closes normally.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	run, err := h.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.log.Warn().Err(err).Str("run_id", run.ID).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream ended unexpectedly")

	// Subscribers only listen; CloseRead handles control frames and
	// cancels ctx when the client goes away
	ctx := conn.CloseRead(r.Context())

	h.log.Debug().Str("run_id", run.ID).Msg("Client subscribed to run progress")

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	for {
		snap := run.Snapshot()
		msg := progressMessage{
			Type:            "progress",
			RunID:           snap.ID,
			Status:          string(snap.Status),
			CompletedTrials: snap.CompletedTrials,
			TotalTrials:     snap.TotalTrials,
			Progress:        snap.Progress,
		}

		if snap.Status.Terminal() {
			msg.Type = "finished"
			msg.Error = snap.Error
			if snap.Report != nil {
				msg.Report = snap.Report
				if rated, err := h.engine.DeriveShadowRating(snap.Report); err == nil {
					msg.Rating = rated
				}
			}
			if err := h.write(ctx, conn, msg); err != nil {
				return
			}
			conn.Close(websocket.StatusNormalClosure, "run finished")
			return
		}

		if err := h.write(ctx, conn, msg); err != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-run.Done():
		case <-ticker.C:
		}
	}
}

func (h *Handler) write(ctx context.Context, conn *websocket.Conn, msg progressMessage) error {
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := wsjson.Write(writeCtx, conn, msg); err != nil {
		h.log.Debug().Err(err).Str("run_id", msg.RunID).Msg("Progress stream write failed")
		return err
	}
	return nil
}
