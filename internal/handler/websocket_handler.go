// internal/handler/websocket_handler.go
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"printer-service/internal/model"
	"printer-service/internal/service"
	"printer-service/internal/utils"
)

const (
	wsReadTimeout    = 60 * time.Second
	wsWriteTimeout   = 10 * time.Second
	wsPingInterval   = 54 * time.Second
	wsCommandTimeout = 30 * time.Second
	wsSendBuffer     = 256
)

// WebSocketHandler pushes printer events to UI clients and accepts a small
// set of commands on the same socket
type WebSocketHandler struct {
	upgrader       websocket.Upgrader
	connections    *ConnectionManager
	printerService *service.PrinterService
	eventBus       *EventBus
	logger         *utils.ServiceLogger

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewWebSocketHandler creates a new WebSocket handler. An empty
// allowedOrigins or one containing "*" accepts every origin.
func NewWebSocketHandler(
	printerService *service.PrinterService,
	eventBus *EventBus,
	allowedOrigins []string,
	logger *zap.Logger,
) *WebSocketHandler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(origins) == 0 || origins["*"] {
				return true
			}
			origin := r.Header.Get("Origin")
			// no Origin header means a non-browser client
			return origin == "" || origins[origin]
		},
	}

	return &WebSocketHandler{
		upgrader:       upgrader,
		connections:    NewConnectionManager(),
		printerService: printerService,
		eventBus:       eventBus,
		logger:         utils.NewServiceLogger(logger, "websocket-handler"),
		done:           make(chan struct{}),
	}
}

// Start relays bus events to connected clients
func (h *WebSocketHandler) Start() {
	h.startOnce.Do(func() {
		events, unsubscribe := h.eventBus.Subscribe()
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			defer unsubscribe()
			for {
				select {
				case <-h.done:
					return
				case event, ok := <-events:
					if !ok {
						return
					}
					h.BroadcastEvent(event)
				}
			}
		}()
	})
}

// Stop disconnects every client
func (h *WebSocketHandler) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
		h.connections.Stop()
	})
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/events", h.HandleEventConnection)
}

// HandleEventConnection upgrades to a printer event stream
// @Summary Printer event stream
// @Description Upgrade to a WebSocket that receives STATE_CHANGED, RECONNECT_ATTEMPT, PRINT_COMPLETED, PRINT_FAILED and DRAWER_OPENED events
// @Tags Events
// @Success 101 {string} string "Switching protocols"
// @Router /ws/events [get]
func (h *WebSocketHandler) HandleEventConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, wsSendBuffer),
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}

	if !h.connections.Register(client) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(wsWriteTimeout))
		_ = conn.Close()
		return
	}
	h.logger.Info("Event WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("remote_addr", client.RemoteAddr),
	)

	h.sendInitialStatus(client)

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

// handleClientRead handles reading messages from WebSocket client
func (h *WebSocketHandler) handleClientRead(client *Client) {
	defer func() {
		h.connections.Unregister(client)
		client.Connection.Close()
	}()

	client.Connection.SetReadDeadline(time.Now().Add(wsReadTimeout))
	client.Connection.SetPongHandler(func(string) error {
		client.Connection.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		_, messageBytes, err := client.Connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket read error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
			}
			break
		}

		var message WebSocketMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			h.logger.Warn("Failed to parse WebSocket message",
				zap.Error(err),
				zap.String("client_id", client.ID),
			)
			h.sendError(client, "", "invalid message")
			continue
		}

		h.handleClientMessage(client, &message)
	}
}

// handleClientWrite handles writing messages to WebSocket client
func (h *WebSocketHandler) handleClientWrite(client *Client) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		client.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Connection.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				client.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Connection.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Error("WebSocket write error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
				return
			}

		case <-ticker.C:
			client.Connection.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := client.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleClientMessage handles incoming client messages
func (h *WebSocketHandler) handleClientMessage(client *Client, message *WebSocketMessage) {
	switch message.Type {
	case "subscribe":
		h.handleSubscription(client, message, true)
	case "unsubscribe":
		h.handleSubscription(client, message, false)
	case "command":
		h.handleCommand(client, message)
	case "ping":
		h.sendMessage(client, &WebSocketMessage{
			Type:      "pong",
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})
	default:
		h.logger.Warn("Unknown message type",
			zap.String("type", message.Type),
			zap.String("client_id", client.ID),
		)
		h.sendError(client, message.RequestID, fmt.Sprintf("unknown message type: %s", message.Type))
	}
}

// handleSubscription narrows or widens the event types a client receives
func (h *WebSocketHandler) handleSubscription(client *Client, message *WebSocketMessage, subscribe bool) {
	data, ok := message.Data.(map[string]interface{})
	if !ok {
		h.sendError(client, message.RequestID, "topic is required")
		return
	}
	topic, ok := data["topic"].(string)
	if !ok || topic == "" {
		h.sendError(client, message.RequestID, "topic is required")
		return
	}

	eventType := model.EventType(topic)
	if subscribe {
		client.Subscribe(eventType)
	} else {
		client.Unsubscribe(eventType)
	}

	h.logger.Debug("Client subscription changed",
		zap.String("client_id", client.ID),
		zap.String("topic", topic),
		zap.Bool("subscribed", subscribe),
	)

	h.sendMessage(client, &WebSocketMessage{
		Type: "subscription_confirmed",
		Data: map[string]interface{}{
			"topic":         topic,
			"subscribed":    subscribe,
			"subscriptions": client.Subscriptions(),
		},
		Timestamp: time.Now(),
		RequestID: message.RequestID,
	})
}

// handleCommand runs a printer command without blocking the read loop
func (h *WebSocketHandler) handleCommand(client *Client, message *WebSocketMessage) {
	data, ok := message.Data.(map[string]interface{})
	if !ok {
		h.sendError(client, message.RequestID, "invalid command data")
		return
	}

	command, ok := data["command"].(string)
	if !ok {
		h.sendError(client, message.RequestID, "command is required")
		return
	}

	go h.executeCommand(client, message.RequestID, command, data)
}

// executeCommand executes a printer command
func (h *WebSocketHandler) executeCommand(client *Client, requestID, command string, data map[string]interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), wsCommandTimeout)
	defer cancel()

	var err error
	var result interface{}

	switch command {
	case "status":
		result = h.printerService.Status(ctx)

	case "connect":
		req := &service.ConnectRequest{}
		if address, ok := data["address"].(string); ok {
			req.Address = address
		}
		result, err = h.printerService.Connect(ctx, req)

	case "disconnect":
		err = h.printerService.Disconnect(ctx)
		result = map[string]interface{}{"disconnected": err == nil}

	case "test_print":
		result, err = h.printerService.TestPrint(ctx)

	case "open_drawer":
		err = h.printerService.OpenDrawer(ctx)
		result = map[string]interface{}{"opened": err == nil}

	default:
		h.sendError(client, requestID, fmt.Sprintf("unknown command: %s", command))
		return
	}

	payload := map[string]interface{}{
		"command": command,
		"success": err == nil,
		"result":  result,
	}
	if err != nil {
		payload["error"] = err.Error()
		if kind := model.KindOf(err); kind != "" {
			payload["kind"] = kind
			payload["hint"] = model.HintOf(err)
		}
	}

	h.sendMessage(client, &WebSocketMessage{
		Type:      "command_response",
		Data:      payload,
		Timestamp: time.Now(),
		RequestID: requestID,
	})
}

// sendInitialStatus sends the current status snapshot to a new client
func (h *WebSocketHandler) sendInitialStatus(client *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
	defer cancel()

	h.sendMessage(client, &WebSocketMessage{
		Type:      "initial_status",
		Data:      h.printerService.Status(ctx),
		Timestamp: time.Now(),
	})
}

// sendMessage sends a message to a client
func (h *WebSocketHandler) sendMessage(client *Client, message *WebSocketMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}

	if !h.connections.SendTo(client, messageBytes) {
		h.logger.Warn("Client send channel full or closed, dropping message",
			zap.String("client_id", client.ID),
		)
	}
}

// sendError sends an error message to a client
func (h *WebSocketHandler) sendError(client *Client, requestID, errorMsg string) {
	h.sendMessage(client, &WebSocketMessage{
		Type: "error",
		Data: map[string]interface{}{
			"error": errorMsg,
		},
		Timestamp: time.Now(),
		RequestID: requestID,
	})
}

// BroadcastEvent sends a service event to every client subscribed to its type
func (h *WebSocketHandler) BroadcastEvent(event model.ServiceEvent) {
	messageBytes, err := json.Marshal(&WebSocketMessage{
		Type:      "event",
		Data:      event,
		Timestamp: event.Timestamp,
	})
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	dropped := h.connections.Broadcast(messageBytes, func(c *Client) bool {
		return c.Wants(event.Type)
	})
	for _, id := range dropped {
		h.logger.Warn("Client send channel full during broadcast",
			zap.String("client_id", id),
			zap.String("event_type", string(event.Type)),
		)
	}
}

// GetConnectionStats returns connection statistics
func (h *WebSocketHandler) GetConnectionStats() *ConnectionStats {
	return h.connections.GetStats()
}
