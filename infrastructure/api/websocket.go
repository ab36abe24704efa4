package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/coder/websocket"

	"github.com/codefuse-ai/modelcache/application/service"
)

// wsRequest is one WebSocket frame: a correlation id plus the same envelope
// POST /modelcache accepts.
type wsRequest struct {
	RequestID string          `json:"requestId"`
	Payload   requestEnvelope `json:"payload"`
}

// wsResponse echoes the correlation id with the response envelope.
type wsResponse struct {
	RequestID string `json:"requestId"`
	Payload   any    `json:"payload"`
}

// WebSocket handles GET /modelcache/ws. Frames are processed sequentially
// per connection; a malformed frame answers with the parse-failure envelope
// instead of dropping the connection.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "server error")

	ctx := r.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				h.logger.Debug("websocket read ended", "error", err)
			}
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		}

		var req wsRequest
		response := wsResponse{}
		if err := json.Unmarshal(data, &req); err != nil {
			response.Payload = errorResponse{
				ErrorCode: service.CodeRequestInvalid,
				ErrorDesc: fmt.Sprintf("malformed frame: %v", err),
			}
		} else {
			response.RequestID = req.RequestID
			response.Payload = h.dispatch(ctx, req.Payload)
		}

		out, err := json.Marshal(response)
		if err != nil {
			h.logger.Error("websocket response encode failed", "error", err)
			continue
		}
		if err := conn.Write(ctx, websocket.MessageText, out); err != nil {
			h.logger.Debug("websocket write failed", "error", err)
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}
