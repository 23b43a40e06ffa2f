package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"blackjack-backend/internal/models"
	"blackjack-backend/internal/services"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 32
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler pushes turn and balance updates to the sockets of a user.
// It implements services.Broadcaster.
type WebSocketHandler struct {
	userService *services.UserService
	hub         *WebSocketHub
	log         *zap.SugaredLogger
}

type WebSocketHub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	done       chan struct{}
	closeOnce  sync.Once
	log        *zap.SugaredLogger
}

// Client is one socket. Only its write pump writes to Conn; everything else
// goes through the send queue.
type Client struct {
	UserID string
	Conn   *websocket.Conn
	send   chan *Message
	done   chan struct{}
	once   sync.Once
}

func newClient(userID string, conn *websocket.Conn) *Client {
	return &Client{
		UserID: userID,
		Conn:   conn,
		send:   make(chan *Message, sendBuffer),
		done:   make(chan struct{}),
	}
}

// enqueue never blocks. It reports false when the client is closed or its
// queue is full.
func (c *Client) enqueue(msg *Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}

func (c *Client) writePump(log *zap.SugaredLogger) {
	defer c.close()
	for {
		select {
		case msg := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteJSON(msg); err != nil {
				log.Debugw("websocket write failed", "user_id", c.UserID, "error", err)
				return
			}
		case <-c.done:
			return
		}
	}
}

type Message struct {
	Type   string `json:"type"`
	UserID string `json:"user_id,omitempty"`
	GameID string `json:"game_id,omitempty"`
	Data   any    `json:"data"`
}

func newWebSocketHub(log *zap.SugaredLogger) *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 100),
		done:       make(chan struct{}),
		log:        log,
	}
}

func NewWebSocketHandler(userService *services.UserService, log *zap.SugaredLogger) *WebSocketHandler {
	hub := newWebSocketHub(log)
	go hub.run()

	return &WebSocketHandler{
		userService: userService,
		hub:         hub,
		log:         log,
	}
}

// Close stops the hub and drops every connection.
func (h *WebSocketHandler) Close() {
	h.hub.closeOnce.Do(func() { close(h.hub.done) })
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	userID := c.GetString("user_id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warnw("failed to upgrade to websocket", "error", err)
		return
	}

	client := newClient(userID, conn)
	if !h.hub.add(client) {
		conn.Close()
		return
	}
	go client.writePump(h.log)

	defer func() {
		h.hub.remove(client)
		client.close()
	}()

	h.sendBalance(c, client)

	for {
		var msg Message
		err := conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warnw("websocket error", "user_id", userID, "error", err)
			}
			break
		}

		h.handleMessage(c, client, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(c *gin.Context, client *Client, msg *Message) {
	switch msg.Type {
	case "PING":
		h.sendPong(client)
	case "BALANCE":
		h.sendBalance(c, client)
	}
}

func (h *WebSocketHandler) sendBalance(c *gin.Context, client *Client) {
	user, err := h.userService.GetUser(c.Request.Context(), client.UserID)
	if err != nil {
		h.log.Warnw("failed to get wallet for websocket", "user_id", client.UserID, "error", err)
		return
	}

	client.enqueue(balanceMessage(user.ID, user.Wallet))
}

func (h *WebSocketHandler) sendPong(client *Client) {
	client.enqueue(&Message{
		Type: "PONG",
		Data: gin.H{
			"timestamp": time.Now().Unix(),
		},
	})
}

// add and remove return once the hub has stopped instead of blocking.
func (hub *WebSocketHub) add(client *Client) bool {
	select {
	case hub.register <- client:
		return true
	case <-hub.done:
		return false
	}
}

func (hub *WebSocketHub) remove(client *Client) {
	select {
	case hub.unregister <- client:
	case <-hub.done:
	}
}

func (hub *WebSocketHub) run() {
	for {
		select {
		case client := <-hub.register:
			if hub.clients[client.UserID] == nil {
				hub.clients[client.UserID] = make(map[*Client]struct{})
			}
			hub.clients[client.UserID][client] = struct{}{}
			hub.log.Debugw("client registered", "user_id", client.UserID)

		case client := <-hub.unregister:
			hub.drop(client)

		case message := <-hub.broadcast:
			hub.broadcastMessage(message)

		case <-hub.done:
			for _, conns := range hub.clients {
				for client := range conns {
					client.close()
				}
			}
			return
		}
	}
}

func (hub *WebSocketHub) drop(client *Client) {
	if conns, ok := hub.clients[client.UserID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(hub.clients, client.UserID)
		}
		hub.log.Debugw("client unregistered", "user_id", client.UserID)
	}
}

// broadcastMessage queues message for every socket of the user. A client
// whose queue is full is disconnected rather than waited on.
func (hub *WebSocketHub) broadcastMessage(message *Message) {
	for client := range hub.clients[message.UserID] {
		if !client.enqueue(message) {
			hub.log.Warnw("websocket client too slow, disconnecting", "user_id", message.UserID)
			client.close()
			hub.drop(client)
		}
	}
}

// publish never blocks the caller; updates are dropped when the hub lags.
func (h *WebSocketHandler) publish(msg *Message) {
	select {
	case h.hub.broadcast <- msg:
	default:
		h.log.Warnw("websocket broadcast queue full, dropping message", "type", msg.Type, "user_id", msg.UserID)
	}
}

func (h *WebSocketHandler) BroadcastTurnUpdate(userID string, turn *models.Turn) {
	h.publish(&Message{
		Type:   "TURN_UPDATE",
		UserID: userID,
		GameID: turn.GameID,
		Data:   turnView(turn),
	})
}

func (h *WebSocketHandler) BroadcastBalance(userID string, wallet int64) {
	h.publish(balanceMessage(userID, wallet))
}

func balanceMessage(userID string, wallet int64) *Message {
	return &Message{
		Type:   "BALANCE_UPDATE",
		UserID: userID,
		Data: gin.H{
			"balance":   wallet,
			"timestamp": time.Now().Unix(),
		},
	}
}
