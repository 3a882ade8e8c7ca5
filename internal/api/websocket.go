// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Corphon/ShowrunnerStudio/internal/auth"
	"github.com/Corphon/ShowrunnerStudio/internal/models"
	"github.com/Corphon/ShowrunnerStudio/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// 事件类型
const (
	EventWelcome            = "welcome"
	EventSnapshot           = "snapshot"
	EventReset              = "reset"
	EventCredentialRequired = "credential_required"
	EventCredentialRestored = "credential_restored"
)

const (
	sendBufferSize = 64
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	writeWait      = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Event 推送给客户端的消息
type Event struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// hubClient 一个 WebSocket 连接
type hubClient struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	closed    int32
	createdAt time.Time
}

func (client *hubClient) Close() {
	if atomic.CompareAndSwapInt32(&client.closed, 0, 1) {
		client.conn.Close()
	}
}

func (client *hubClient) IsClosed() bool {
	return atomic.LoadInt32(&client.closed) == 1
}

// Hub 把快照与凭证状态的变化推送给所有连接。事件按发布顺序送达每个客户端。
type Hub struct {
	clients    map[*hubClient]struct{}
	broadcast  chan []byte
	register   chan *hubClient
	unregister chan *hubClient
	done       chan struct{}
	stopOnce   sync.Once
	mutex      sync.RWMutex
	logger     *utils.Logger
}

// NewHub 创建并启动推送中心
func NewHub() *Hub {
	hub := &Hub{
		clients:    make(map[*hubClient]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *hubClient, 16),
		unregister: make(chan *hubClient, 16),
		done:       make(chan struct{}),
		logger:     utils.GetLogger(),
	}
	go hub.run()
	return hub
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = struct{}{}
			h.mutex.Unlock()
			h.logger.Info("websocket client connected", map[string]interface{}{"client_id": client.id})

		case client := <-h.unregister:
			h.removeClient(client)

		case message := <-h.broadcast:
			h.deliver(message)

		case <-h.done:
			h.shutdown()
			return
		}
	}
}

func (h *Hub) removeClient(client *hubClient) {
	h.mutex.Lock()
	_, exists := h.clients[client]
	if exists {
		delete(h.clients, client)
		close(client.send)
	}
	h.mutex.Unlock()

	if exists {
		h.logger.Info("websocket client disconnected", map[string]interface{}{"client_id": client.id})
	}
}

// deliver 把消息放入每个客户端的发送队列；队列满的客户端被断开
func (h *Hub) deliver(message []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			h.logger.Warn("websocket client too slow, dropping", map[string]interface{}{"client_id": client.id})
			delete(h.clients, client)
			close(client.send)
			client.Close()
		}
	}
}

func (h *Hub) shutdown() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		close(client.send)
		client.Close()
	}
	h.clients = make(map[*hubClient]struct{})
	h.logger.Info("websocket hub stopped", nil)
}

// Stop 关闭所有连接并停止推送
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Status 推送中心状态
func (h *Hub) Status() map[string]interface{} {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]map[string]interface{}, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, map[string]interface{}{
			"client_id":    client.id,
			"connected_at": client.createdAt.Format(time.RFC3339),
		})
	}
	return map[string]interface{}{
		"total_connections": len(h.clients),
		"clients":           clients,
	}
}

func encodeEvent(eventType string, data interface{}) ([]byte, error) {
	return json.Marshal(Event{Type: eventType, Data: data, Timestamp: time.Now()})
}

// Publish 广播一个事件
func (h *Hub) Publish(eventType string, data interface{}) {
	message, err := encodeEvent(eventType, data)
	if err != nil {
		h.logger.Error("failed to encode websocket event", map[string]interface{}{"type": eventType, "error": err.Error()})
		return
	}

	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

// PublishSnapshot 快照监听器：每次提交推送新快照，重置时推送 reset
func (h *Hub) PublishSnapshot(snap *models.Series) {
	if snap == nil {
		h.Publish(EventReset, nil)
		return
	}
	h.Publish(EventSnapshot, NewSnapshotEvent(snap))
}

// SnapshotEvent 推送用的快照：剥离图像数据，只列出已有图像的画格与角色，
// 客户端按需通过 GET /api/series 取图
type SnapshotEvent struct {
	Series       *models.Series `json:"series"`
	PlatedFrames []string       `json:"plated_frames"`
	PortraitCast []string       `json:"portrait_cast"`
}

// NewSnapshotEvent 构造不含图像数据的快照副本，不修改共享快照
func NewSnapshotEvent(snap *models.Series) *SnapshotEvent {
	if snap == nil {
		return nil
	}
	light := *snap
	event := &SnapshotEvent{Series: &light, PlatedFrames: []string{}, PortraitCast: []string{}}

	light.Cast = make([]models.CastMember, len(snap.Cast))
	for i, member := range snap.Cast {
		if member.Portrait != "" {
			event.PortraitCast = append(event.PortraitCast, member.ID)
			member.Portrait = ""
		}
		light.Cast[i] = member
	}

	light.Story.Issues = make([]models.Issue, len(snap.Story.Issues))
	for i, issue := range snap.Story.Issues {
		beats := make([]models.Beat, len(issue.Beats))
		for j, beat := range issue.Beats {
			frames := make([]models.Frame, len(beat.Frames))
			for k, frame := range beat.Frames {
				if frame.HasPlate() {
					event.PlatedFrames = append(event.PlatedFrames, frame.ID)
					frame.PlateURL = ""
				}
				frames[k] = frame
			}
			beat.Frames = frames
			beats[j] = beat
		}
		issue.Beats = beats
		light.Story.Issues[i] = issue
	}
	return event
}

// PublishGate 凭证门监听器
func (h *Hub) PublishGate(status auth.GateStatus) {
	if status.NeedsReentry {
		h.Publish(EventCredentialRequired, status)
		return
	}
	h.Publish(EventCredentialRestored, status)
}

// Serve 升级连接并开始推送；welcome 事件携带当前快照
func (h *Hub) Serve(c *gin.Context, welcome interface{}) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}

	client := &hubClient{
		id:        uuid.NewString(),
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		createdAt: time.Now(),
	}

	// 欢迎消息先于任何广播进入队列
	if message, err := encodeEvent(EventWelcome, welcome); err == nil {
		client.send <- message
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(client)
	h.readPump(client)
}

// readPump 只处理 pong 与关闭；客户端不发送业务消息
func (h *Hub) readPump(client *hubClient) {
	defer func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
		client.Close()
	}()

	client.conn.SetReadLimit(4096)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(client *hubClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
