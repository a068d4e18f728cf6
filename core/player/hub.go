package player

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"CineFM/core/preload"
	"CineFM/logger"

	"github.com/gorilla/websocket"
)

// MessageType 信令消息类型
type MessageType string

const (
	MsgTypeVisibility    MessageType = "visibility"     // 窗口可见性变化
	MsgTypeNetwork       MessageType = "network"        // 网络信号上报
	MsgTypeVisibleTracks MessageType = "visible_tracks" // 可见曲目列表
	MsgTypeHover         MessageType = "hover"          // 悬停预热
	MsgTypePreloadStatus MessageType = "preload_status" // 预载状态推送
	MsgTypeError         MessageType = "error"          // 错误消息
	MsgTypePing          MessageType = "ping"           // 心跳
	MsgTypePong          MessageType = "pong"           // 心跳响应
)

// WSMessage 信令通道消息结构
type WSMessage struct {
	Type      MessageType     `json:"type"`
	WindowID  string          `json:"windowId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// VisibilityData 可见性信号数据
type VisibilityData struct {
	Hidden bool `json:"hidden"`
}

// VisibleTracksData 可见曲目信号数据
type VisibleTracksData struct {
	AssetIDs []string `json:"assetIds"`
}

// HoverData 悬停信号数据
type HoverData struct {
	AssetID string `json:"assetId"`
}

// Client 一个已连接的播放器窗口
type Client struct {
	Hub      *SignalHub
	Conn     *websocket.Conn
	Send     chan []byte
	WindowID string

	mu     sync.RWMutex
	hidden bool
}

// SignalHub 信令中心：管理全部窗口连接，聚合可见性信号并向窗口
// 广播预载状态。页面只有在所有窗口都隐藏时才算隐藏。
type SignalHub struct {
	player *Player

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}

	mu        sync.RWMutex
	allHidden bool
}

// NewSignalHub 创建信令中心并接管预载状态推送
func NewSignalHub(p *Player) *SignalHub {
	h := &SignalHub{
		player:     p,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
	p.Preloader().SetStatusListener(func(st preload.Status) {
		h.PushStatus(st)
	})
	return h
}

// Run 启动信令中心主循环
func (h *SignalHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastAll(message)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止信令中心
func (h *SignalHub) Stop() {
	close(h.done)
}

// Register 注册窗口连接
func (h *SignalHub) Register(client *Client) {
	h.register <- client
}

// Unregister 注销窗口连接
func (h *SignalHub) Unregister(client *Client) {
	h.unregister <- client
}

// ClientCount 当前连接的窗口数
func (h *SignalHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PushStatus 向全部窗口广播预载状态
func (h *SignalHub) PushStatus(st preload.Status) {
	data, err := json.Marshal(st)
	if err != nil {
		return
	}
	payload, err := json.Marshal(&WSMessage{
		Type:      MsgTypePreloadStatus,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		// 广播积压时丢弃本次，下一次推送仍是全量快照
	}
}

// registerClient 注册客户端
func (h *SignalHub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	logger.Info("播放器窗口已连接",
		logger.String("windowId", client.WindowID),
		logger.Int("windows", count))

	h.recomputeVisibility()
}

// unregisterClient 注销客户端
func (h *SignalHub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
	}
	h.mu.Unlock()

	logger.Info("播放器窗口已断开", logger.String("windowId", client.WindowID))
	h.recomputeVisibility()
}

// broadcastAll 向全部窗口发送消息
func (h *SignalHub) broadcastAll(message []byte) {
	h.mu.RLock()
	clientList := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clientList = append(clientList, client)
	}
	h.mu.RUnlock()

	for _, client := range clientList {
		select {
		case client.Send <- message:
		default:
			// 发送缓冲区满，视为失联窗口直接移除
			h.unregisterClient(client)
		}
	}
}

// recomputeVisibility 重新聚合窗口可见性。没有任何窗口连接时按
// 隐藏处理，让宽限计时照常回收内存。
func (h *SignalHub) recomputeVisibility() {
	h.mu.Lock()
	hidden := true
	for client := range h.clients {
		if !client.isHidden() {
			hidden = false
			break
		}
	}
	changed := hidden != h.allHidden
	h.allHidden = hidden
	h.mu.Unlock()

	if !changed {
		return
	}
	if hidden {
		h.player.Preloader().OnPageHidden()
	} else {
		h.player.Preloader().OnPageVisible()
	}
}

// cleanup 清理所有连接
func (h *SignalHub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.Send)
	}
	h.clients = make(map[*Client]bool)
}

// ========== Client 方法 ==========

// NewClient 包装一条窗口连接
func NewClient(hub *SignalHub, conn *websocket.Conn, windowID string) *Client {
	return &Client{
		Hub:      hub,
		Conn:     conn,
		Send:     make(chan []byte, 64),
		WindowID: windowID,
	}
}

// ReadPump 读取消息循环
func (c *Client) ReadPump(ctx context.Context, handler func(ctx context.Context, client *Client, msg *WSMessage)) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096) // 4KB
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, message, err := c.Conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Warn("信令连接读取失败",
						logger.ErrorField(err),
						logger.String("windowId", c.WindowID))
				}
				return
			}

			var msg WSMessage
			if err := json.Unmarshal(message, &msg); err != nil {
				logger.Warn("信令消息格式错误",
					logger.ErrorField(err),
					logger.String("windowId", c.WindowID))
				continue
			}

			// 处理心跳
			if msg.Type == MsgTypePing {
				pong := &WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()}
				if data, err := json.Marshal(pong); err == nil {
					select {
					case c.Send <- data:
					default:
					}
				}
				continue
			}

			handler(ctx, c, &msg)
		}
	}
}

// WritePump 写入消息循环
func (c *Client) WritePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub 关闭了通道
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// 合并发送队列中的消息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage 发送消息给该窗口，缓冲区满时静默丢弃
func (c *Client) SendMessage(msg *WSMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case c.Send <- data:
	default:
	}
	return nil
}

// SetHidden 更新该窗口的可见性并触发全局聚合
func (c *Client) SetHidden(hidden bool) {
	c.mu.Lock()
	c.hidden = hidden
	c.mu.Unlock()
	c.Hub.recomputeVisibility()
}

// isHidden 读取该窗口的可见性（线程安全）
func (c *Client) isHidden() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hidden
}
