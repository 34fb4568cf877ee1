// ws.go

package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lifequest/LifeQuest-Server/internal/models"
	"github.com/lifequest/LifeQuest-Server/internal/notify"
	"github.com/lifequest/LifeQuest-Server/internal/session"
)

const (
	// 写入超时时间
	writeWait = 10 * time.Second

	// 读取超时时间
	pongWait = 60 * time.Second

	// 发送 ping 的间隔时间
	pingPeriod = (pongWait * 9) / 10

	// 最大消息大小
	maxMessageSize = 4 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 允许所有跨域请求
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSMessage 推送消息结构
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ClientConnection 客户端连接
type ClientConnection struct {
	ID     string
	UserID string
	Send   chan []byte
}

// WSHub 实时推送中心
// 档案快照和通知通过这里推送给用户的全部连接
type WSHub struct {
	connections map[string]*ClientConnection
	byUser      map[string]map[string]*ClientConnection
	connMutex   sync.RWMutex

	auth     *AuthHandler
	sessions *session.Manager
}

// NewWSHub 创建推送中心
func NewWSHub(auth *AuthHandler) *WSHub {
	return &WSHub{
		connections: make(map[string]*ClientConnection),
		byUser:      make(map[string]map[string]*ClientConnection),
		auth:        auth,
	}
}

// SetSessionManager 设置会话管理器
// 推送中心和管理器互相引用，在网关装配时完成绑定
func (hub *WSHub) SetSessionManager(sessions *session.Manager) {
	hub.sessions = sessions
}

// RegisterHandlers 注册HTTP处理器
func (hub *WSHub) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/ws", hub.handleConnection)
}

// handleConnection 处理WebSocket连接
func (hub *WSHub) handleConnection(w http.ResponseWriter, r *http.Request) {
	// 身份解析失败时回退为访客身份，连接照常建立
	userID, _ := hub.auth.ResolveIdentity(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket升级失败: %v", err)
		return
	}

	client := &ClientConnection{
		ID:     uuid.New().String(),
		UserID: userID,
		Send:   make(chan []byte, 256),
	}

	hub.connMutex.Lock()
	hub.connections[client.ID] = client
	if hub.byUser[userID] == nil {
		hub.byUser[userID] = make(map[string]*ClientConnection)
	}
	hub.byUser[userID][client.ID] = client
	hub.connMutex.Unlock()

	log.Printf("用户 %s 已连接", userID)

	// 建立会话并下发初始档案快照
	s := hub.sessions.Get(r.Context(), userID)
	hub.send(client, WSMessage{Type: "profile", Payload: s.Profile()})

	go hub.readPump(conn, client)
	go hub.writePump(conn, client)
}

// readPump 从WebSocket读取数据
// 前端不经由WebSocket下发指令，读取循环只维持心跳和断线检测
func (hub *WSHub) readPump(conn *websocket.Conn, client *ClientConnection) {
	defer func() {
		hub.closeConnection(client)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket错误: %v", err)
			}
			break
		}
	}
}

// writePump 向WebSocket写入数据
func (hub *WSHub) writePump(conn *websocket.Conn, client *ClientConnection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// 通道已关闭
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// closeConnection 关闭客户端连接
func (hub *WSHub) closeConnection(client *ClientConnection) {
	hub.connMutex.Lock()
	defer hub.connMutex.Unlock()

	if _, ok := hub.connections[client.ID]; !ok {
		return
	}

	close(client.Send)
	delete(hub.connections, client.ID)
	if conns := hub.byUser[client.UserID]; conns != nil {
		delete(conns, client.ID)
		if len(conns) == 0 {
			delete(hub.byUser, client.UserID)
		}
	}

	log.Printf("用户 %s 已断开连接", client.UserID)
}

// PushNotification 向用户推送一条通知
func (hub *WSHub) PushNotification(userID string, n notify.Notification) {
	hub.broadcast(userID, WSMessage{Type: "notification", Payload: n})
}

// PushProfile 向用户推送档案快照
func (hub *WSHub) PushProfile(userID string, profile models.PlayerProfile) {
	hub.broadcast(userID, WSMessage{Type: "profile", Payload: profile})
}

// broadcast 向用户的所有连接推送消息
func (hub *WSHub) broadcast(userID string, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("序列化消息失败: %v", err)
		return
	}

	hub.connMutex.RLock()
	defer hub.connMutex.RUnlock()

	for _, client := range hub.byUser[userID] {
		select {
		case client.Send <- data:
			// 消息已发送到通道
		default:
			// 通道已满，放弃本条消息
		}
	}
}

// send 向单个连接发送消息
func (hub *WSHub) send(client *ClientConnection, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("序列化消息失败: %v", err)
		return
	}

	select {
	case client.Send <- data:
	default:
	}
}
