package server

import (
	"net/http"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/ai-chess-training/LLM-ChessCoach/pkg/coachdto"
)

// streamMove upgrades to WebSocket and relays the ordered event sequence
// for one move submission. Closing the socket cancels event delivery;
// a submission that already committed stays committed.
func (h *Handler) streamMove(w http.ResponseWriter, r *http.Request) {
	move := r.URL.Query().Get("move")
	if move == "" {
		http.Error(w, "missing move parameter", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	ctx := r.Context()
	sawError := false
	for ev := range h.sessions.StreamMove(ctx, r.PathValue("id"), move) {
		if err := wsjson.Write(ctx, conn, ev); err != nil {
			h.logger.Debug("stream consumer gone", zap.Error(err))
			return
		}
		if ev.Type == coachdto.EventError {
			sawError = true
		}
	}

	if sawError {
		conn.Close(websocket.StatusPolicyViolation, "submission failed")
		return
	}
	conn.Close(websocket.StatusNormalClosure, "done")
}
