package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// 매칭 알림은 시간에 민감하므로 쓰기 대기를 짧게 잡는다
	writeWait = 5 * time.Second

	// pong 응답 대기 한도
	pongWait = 45 * time.Second

	// ping 주기 (pongWait보다 짧아야 함)
	pingPeriod = pongWait * 2 / 3

	// 클라이언트는 짧은 컨트롤 메시지만 보낸다
	maxMessageSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// origin 검증은 CORS 미들웨어 단계에서 처리된다
		return true
	},
}

// clientMessage 클라이언트가 보내는 컨트롤 메시지. 매칭 알림 자체는
// 서버에서 클라이언트로만 흐른다.
type clientMessage struct {
	Type string `json:"type"`
}

// Client 대기열에 들어간 사용자의 WebSocket 연결
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan *Message
	userID string
	logger *zap.Logger
}

// NewClient 클라이언트 생성. 로거는 Hub의 것을 공유한다.
func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan *Message, 64),
		userID: userID,
		logger: hub.logger,
	}
}

// readPump 클라이언트 컨트롤 메시지 처리 및 연결 유지.
// ping 타입에는 pong으로 응답하고 나머지는 버린다.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error",
					zap.String("userId", c.userID),
					zap.Error(err))
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug("Dropping malformed client message",
				zap.String("userId", c.userID))
			continue
		}

		switch msg.Type {
		case "ping":
			// 프록시 뒤에서 프로토콜 ping이 막힐 때를 위한 앱 레벨 keepalive
			select {
			case c.send <- &Message{Type: "pong"}:
			default:
			}
		default:
			c.logger.Debug("Ignoring unknown client message type",
				zap.String("userId", c.userID),
				zap.String("type", msg.Type))
		}
	}
}

// writePump Hub에서 받은 매칭/대기열 알림을 클라이언트에게 전송
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub가 연결을 교체하거나 해제함
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Warn("Failed to write message",
					zap.String("userId", c.userID),
					zap.String("type", message.Type),
					zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs WebSocket 연결 업그레이드 및 클라이언트 시작
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("Failed to upgrade WebSocket connection",
			zap.String("userId", userID),
			zap.Error(err))
		return
	}

	client := NewClient(hub, conn, userID)
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}
