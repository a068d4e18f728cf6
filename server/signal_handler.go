package server

import (
	"context"
	"encoding/json"
	"net/http"

	"CineFM/core/player"
	"CineFM/core/preload"
	"CineFM/logger"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// SignalHandler 播放器信令 WebSocket 处理器
type SignalHandler struct {
	hub      *player.SignalHub
	player   *player.Player
	upgrader websocket.Upgrader
}

// NewSignalHandler 创建信令处理器
func NewSignalHandler(hub *player.SignalHub, p *player.Player) *SignalHandler {
	return &SignalHandler{
		hub:    hub,
		player: p,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// WebSocketHandler 升级信令连接
func (h *SignalHandler) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	// 每个播放器窗口一条连接，窗口自带标识时沿用
	windowID := r.URL.Query().Get("windowId")
	if windowID == "" {
		windowID = uuid.NewString()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket 升级失败", logger.ErrorField(err))
		return
	}

	client := player.NewClient(h.hub, conn, windowID)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(context.Background(), h.handleSignal)

	logger.Info("信令连接建立", logger.String("windowId", windowID))
}

// handleSignal 分发窗口上行信令
func (h *SignalHandler) handleSignal(ctx context.Context, client *player.Client, msg *player.WSMessage) {
	switch msg.Type {
	case player.MsgTypeVisibility:
		var data player.VisibilityData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			h.sendError(client, "无效的可见性信号")
			return
		}
		client.SetHidden(data.Hidden)

	case player.MsgTypeNetwork:
		var signals preload.NetworkSignals
		if err := json.Unmarshal(msg.Data, &signals); err != nil {
			h.sendError(client, "无效的网络信号")
			return
		}
		h.player.Preloader().OnNetworkChanged(signals)

	case player.MsgTypeVisibleTracks:
		var data player.VisibleTracksData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			h.sendError(client, "无效的可见曲目信号")
			return
		}
		assets := h.player.ResolveAssets(ctx, data.AssetIDs)
		h.player.Preloader().OnVisibleTracksChanged(assets)

	case player.MsgTypeHover:
		var data player.HoverData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			h.sendError(client, "无效的悬停信号")
			return
		}
		h.player.Hover(ctx, data.AssetID)

	default:
		logger.Warn("未知的信令类型",
			logger.String("type", string(msg.Type)),
			logger.String("windowId", client.WindowID))
		h.sendError(client, "未知的信令类型")
	}
}

// sendError 向窗口回发错误消息
func (h *SignalHandler) sendError(client *player.Client, message string) {
	data, _ := json.Marshal(map[string]string{"message": message})
	client.SendMessage(&player.WSMessage{Type: player.MsgTypeError, Data: data})
}

// RegisterSignalRoutes 注册信令路由
func RegisterSignalRoutes(router *mux.Router, handler *SignalHandler) {
	router.HandleFunc("/ws/player", handler.WebSocketHandler)

	logger.Info("信令通道注册完成", logger.String("endpoints", "WS /ws/player"))
}
