// -----------------------------------------------------------------------
// WebSocket Handler - progress push with throttled, coalesced delivery
// -----------------------------------------------------------------------

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/attesto/internal/common"
	"github.com/ternarybob/attesto/internal/interfaces"
	"github.com/ternarybob/attesto/internal/services/events"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Local deployment; no cross-origin policy
	},
}

// WSMessage is the envelope every websocket frame carries.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WebSocketHandler pushes job events to connected clients. Progress events
// are throttled per the configured interval and coalesced per job, newest
// superseding, so a fast pipeline cannot flood slow clients. Delivery is
// at-least-once; clients reconcile via the job snapshot endpoint after
// reconnecting.
type WebSocketHandler struct {
	logger           arbor.ILogger
	events           interfaces.EventService
	serverInstanceID string

	mu          sync.RWMutex
	clients     map[*websocket.Conn]bool
	clientMutex map[*websocket.Conn]*sync.Mutex

	allowedEvents map[string]bool

	// Progress coalescing: the limiter gates immediate delivery, pending
	// holds the newest payload per job for the next flush.
	progressThrottler *rate.Limiter
	pendingMu         sync.Mutex
	pendingProgress   map[string]events.JobEventPayload

	flushCancel context.CancelFunc
}

func NewWebSocketHandler(eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		events:           eventService,
		serverInstanceID: uuid.New().String(),
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		allowedEvents:    make(map[string]bool),
		pendingProgress:  make(map[string]events.JobEventPayload),
	}

	var flushInterval time.Duration
	if config != nil {
		for _, eventType := range config.AllowedEvents {
			h.allowedEvents[eventType] = true
		}
		if intervalStr, ok := config.ThrottleIntervals[string(interfaces.EventJobProgress)]; ok {
			if interval, err := time.ParseDuration(intervalStr); err == nil && interval > 0 {
				h.progressThrottler = rate.NewLimiter(rate.Every(interval), 1)
				flushInterval = interval
			} else {
				logger.Warn().Str("interval", intervalStr).Msg("Invalid job_progress throttle interval, throttling disabled")
			}
		}
	}

	if flushInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		h.flushCancel = cancel
		go h.flushLoop(ctx, flushInterval)
	}

	return h
}

// Start subscribes the broadcaster to the event bus.
func (h *WebSocketHandler) Start() error {
	for _, eventType := range []interfaces.EventType{
		interfaces.EventJobCreated,
		interfaces.EventJobProgress,
		interfaces.EventJobStatus,
		interfaces.EventJobCompleted,
		interfaces.EventJobFailed,
		interfaces.EventLogBatch,
	} {
		if err := h.events.Subscribe(eventType, h.handleEvent); err != nil {
			return err
		}
	}
	return nil
}

// Stop disconnects every client and halts the flush loop.
func (h *WebSocketHandler) Stop() {
	if h.flushCancel != nil {
		h.flushCancel()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]bool)
	h.clientMutex = make(map[*websocket.Conn]*sync.Mutex)
}

// HandleWebSocket handles GET /ws.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", total)

	// The instance id lets clients detect a server restart and re-sync
	// their job snapshots.
	h.sendTo(conn, WSMessage{Type: "connected", Payload: map[string]string{
		"server_instance_id": h.serverInstanceID,
	}})

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		remaining := len(h.clients)
		h.mu.Unlock()
		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", remaining)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}
	}
}

func (h *WebSocketHandler) handleEvent(ctx context.Context, event interfaces.Event) error {
	if len(h.allowedEvents) > 0 && !h.allowedEvents[string(event.Type)] {
		return nil
	}

	if event.Type == interfaces.EventJobProgress && h.progressThrottler != nil {
		if payload, ok := event.Payload.(events.JobEventPayload); ok {
			h.pendingMu.Lock()
			h.pendingProgress[payload.JobID] = payload
			h.pendingMu.Unlock()

			if h.progressThrottler.Allow() {
				h.flushProgress()
			}
			return nil
		}
	}

	h.broadcast(WSMessage{Type: string(event.Type), Payload: event.Payload})
	return nil
}

// flushLoop periodically drains coalesced progress so the newest update is
// never held longer than one interval.
func (h *WebSocketHandler) flushLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.flushProgress()
		}
	}
}

func (h *WebSocketHandler) flushProgress() {
	h.pendingMu.Lock()
	if len(h.pendingProgress) == 0 {
		h.pendingMu.Unlock()
		return
	}
	pending := h.pendingProgress
	h.pendingProgress = make(map[string]events.JobEventPayload)
	h.pendingMu.Unlock()

	for _, payload := range pending {
		h.broadcast(WSMessage{Type: string(interfaces.EventJobProgress), Payload: payload})
	}
}

func (h *WebSocketHandler) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal websocket message")
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range conns {
		mutexes[i].Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutexes[i].Unlock()
		if err != nil {
			h.logger.Warn().Err(err).Msg("Failed to send to WebSocket client")
		}
	}
}

func (h *WebSocketHandler) sendTo(conn *websocket.Conn, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	mutex := h.clientMutex[conn]
	h.mu.RUnlock()
	if mutex == nil {
		return
	}
	mutex.Lock()
	conn.WriteMessage(websocket.TextMessage, data)
	mutex.Unlock()
}
