package statusapi

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// transitionMessage is one broadcast frame on /tasks/stream.
type transitionMessage struct {
	TaskCode int64  `json:"task_code"`
	Event    string `json:"event"`
	AtUnix   int64  `json:"at_unix"`
}

// hub fans out task lifecycle transitions to every connected websocket
// client. It never drives the engine; it only observes it.
type hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan transitionMessage
}

func newHub(logger *slog.Logger) *hub {
	return &hub{
		logger:  logger,
		clients: make(map[*websocket.Conn]chan transitionMessage),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// This is a read-only observability surface, not a browser
			// app; same-origin enforcement belongs to a reverse proxy
			// in front of it.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *hub) broadcastTransition(taskCode int64, event string) {
	message := transitionMessage{TaskCode: taskCode, Event: event, AtUnix: time.Now().UTC().Unix()}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, queue := range h.clients {
		select {
		case queue <- message:
		default:
			// Slow consumer; drop rather than block task processing.
		}
	}
}

func (h *hub) handleStream(w http.ResponseWriter, req *http.Request) {
	conn, err := h.upgrader.Upgrade(w, req, nil)
	if err != nil {
		h.logger.Error("statusapi: websocket upgrade failed", "error", err)
		return
	}

	queue := make(chan transitionMessage, 32)
	h.mu.Lock()
	h.clients[conn] = queue
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	for message := range queue {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(message); err != nil {
			return
		}
	}
}
