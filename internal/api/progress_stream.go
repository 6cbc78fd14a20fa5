package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// upgrader accepts any origin: this surface sits behind the operator's
// own network boundary, not a public endpoint.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleProgressStream upgrades to a websocket and relays every
// internal/progress.Tracker update to the client until it disconnects.
func (s *Server) handleProgressStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithError(err).Warn("progress stream upgrade failed")
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	updates, cancel := s.tracker.Subscribe(ctx)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(update); err != nil {
				return
			}
		}
	}
}
