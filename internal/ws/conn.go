package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/asima2006/Soinech-Chat-App/internal/auth"
	"github.com/asima2006/Soinech-Chat-App/internal/delivery"
	"github.com/asima2006/Soinech-Chat-App/internal/events"
	"github.com/asima2006/Soinech-Chat-App/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	readLimit  = 1 << 20 // 1MB
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Serve 校验 token 后升级连接；鉴权失败时不创建任何状态。
func Serve(svc *delivery.Service, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Token via token query param or Authorization header
		token := c.Query("token")
		if authz := c.GetHeader("Authorization"); token == "" && len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
			token = strings.TrimSpace(authz[7:])
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := auth.ParseAccessToken(token, jwtSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		s := NewSession(claims.UserID, conn)
		metrics.WsConnections.Inc()
		log.Debug().Uint("user_id", s.UserID()).Str("session_id", s.ID()).Msg("ws connected")

		ctx := context.WithoutCancel(c.Request.Context())
		go s.writePump()
		svc.Connect(ctx, s)
		s.readPump(ctx, svc)
	}
}

func (s *Session) readPump(ctx context.Context, svc *delivery.Service) {
	defer func() {
		svc.Disconnect(s)
		s.Close()
		_ = s.conn.Close()
		metrics.WsConnections.Dec()
		log.Debug().Uint("user_id", s.UserID()).Str("session_id", s.ID()).Msg("ws disconnected")
	}()
	s.conn.SetReadLimit(readLimit)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			break
		}
		in, err := events.Decode(data)
		if err != nil {
			log.Debug().Err(err).Uint("user_id", s.UserID()).Msg("invalid event")
			svc.Reject(s, events.ReasonInvalidEvent)
			continue
		}
		svc.Handle(ctx, s, in)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case message, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
