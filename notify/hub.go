// Package notify broadcasts sync lifecycle events to connected editor
// UIs over WebSocket. The core logic stays notification-free; the
// orchestrator hands events to the hub and the hub fans them out.
package notify

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"Resona/logger"

	"github.com/gorilla/websocket"
)

// Event 同步生命周期事件
type Event struct {
	Type      string          `json:"type"`
	ProjectID string          `json:"projectId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Client WebSocket 客户端
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub 事件广播中心
type Hub struct {
	projectID string

	// 客户端集合
	clients map[*Client]bool

	// 注册/注销通道
	register   chan *Client
	unregister chan *Client

	// 广播通道
	broadcast chan []byte

	mu sync.RWMutex

	// 关闭信号
	done chan struct{}
}

// NewHub 创建事件 Hub
func NewHub(projectID string) *Hub {
	return &Hub{
		projectID:  projectID,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// Run 启动 Hub 主循环
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// 发送缓冲已满，断开该客户端
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.mu.Unlock()

		case <-h.done:
			return
		}
	}
}

// Close 停止 Hub
func (h *Hub) Close() {
	close(h.done)
}

// Notify 实现 sync.Notifier，把事件广播给所有客户端
func (h *Hub) Notify(event string, payload interface{}) {
	var data json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			logger.Warn("failed to encode event payload",
				logger.String("event", event), logger.ErrorField(err))
		} else {
			data = encoded
		}
	}

	message, err := json.Marshal(Event{
		Type:      event,
		ProjectID: h.projectID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		logger.Warn("failed to encode event", logger.ErrorField(err))
		return
	}

	select {
	case h.broadcast <- message:
	default:
		logger.Warn("event broadcast channel full, dropping event",
			logger.String("event", event))
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS 升级 HTTP 连接为 WebSocket 并注册客户端
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	client := &Client{hub: h, conn: conn, send: make(chan []byte, 64)}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// writePump 把广播消息写入连接
func (c *Client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// readPump 丢弃入站消息，仅用于检测连接关闭
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
