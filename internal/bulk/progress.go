package bulk

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var ErrHubClosed = errors.New("progress hub closed")

// ProgressHub fans job progress out to websocket subscribers.
type ProgressHub struct {
	hub      *hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
	once     sync.Once
}

// Subscriber is one websocket client following a job.
type Subscriber struct {
	ID    string
	JobID string
	Conn  *websocket.Conn
	Send  chan Progress
}

type hub struct {
	subscribers map[*Subscriber]bool
	publish     chan Progress
	register    chan *Subscriber
	unregister  chan *Subscriber
	count       chan chan int
	stop        chan struct{}
	logger      *zap.Logger
}

// NewProgressHub starts the hub loop. checkOrigin may be nil to accept any
// origin.
func NewProgressHub(checkOrigin func(r *http.Request) bool, logger *zap.Logger) *ProgressHub {
	h := &hub{
		subscribers: make(map[*Subscriber]bool),
		publish:     make(chan Progress, 256),
		register:    make(chan *Subscriber),
		unregister:  make(chan *Subscriber),
		count:       make(chan chan int),
		stop:        make(chan struct{}),
		logger:      logger,
	}
	go h.run()

	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &ProgressHub{
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
}

// HandleConnection upgrades the request and subscribes it to jobID.
func (p *ProgressHub) HandleConnection(w http.ResponseWriter, r *http.Request, jobID string) (*Subscriber, error) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	sub := &Subscriber{
		ID:    uuid.New().String(),
		JobID: jobID,
		Conn:  conn,
		Send:  make(chan Progress, 64),
	}
	select {
	case p.hub.register <- sub:
	case <-p.hub.stop:
		conn.Close()
		return nil, ErrHubClosed
	}

	go p.readPump(sub)
	go p.writePump(sub)
	return sub, nil
}

// Publish queues an update for the job's subscribers. It never blocks.
func (p *ProgressHub) Publish(update Progress) {
	if update.Timestamp.IsZero() {
		update.Timestamp = time.Now().UTC()
	}
	select {
	case p.hub.publish <- update:
	default:
		p.logger.Warn("Progress channel full, dropping update", zap.String("job_id", update.JobID))
	}
}

// SubscriberCount returns the number of live subscribers.
func (p *ProgressHub) SubscriberCount() int {
	reply := make(chan int)
	select {
	case p.hub.count <- reply:
		return <-reply
	case <-p.hub.stop:
		return 0
	}
}

// Close disconnects every subscriber and stops the hub.
func (p *ProgressHub) Close() {
	p.once.Do(func() { close(p.hub.stop) })
}

// readPump only services control frames; clients do not send data.
func (p *ProgressHub) readPump(sub *Subscriber) {
	defer func() {
		select {
		case p.hub.unregister <- sub:
		case <-p.hub.stop:
		}
		sub.Conn.Close()
	}()

	sub.Conn.SetReadLimit(512)
	sub.Conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.Conn.SetPongHandler(func(string) error {
		return sub.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := sub.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				p.logger.Debug("Progress subscriber closed", zap.String("job_id", sub.JobID), zap.Error(err))
			}
			return
		}
	}
}

func (p *ProgressHub) writePump(sub *Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.Conn.Close()
	}()

	for {
		select {
		case update, ok := <-sub.Send:
			sub.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				sub.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sub.Conn.WriteJSON(update); err != nil {
				return
			}
		case <-ticker.C:
			sub.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *hub) run() {
	for {
		select {
		case sub := <-h.register:
			h.subscribers[sub] = true
			h.logger.Debug("Progress subscriber registered", zap.String("id", sub.ID), zap.String("job_id", sub.JobID))

		case sub := <-h.unregister:
			if _, ok := h.subscribers[sub]; ok {
				delete(h.subscribers, sub)
				close(sub.Send)
			}

		case update := <-h.publish:
			for sub := range h.subscribers {
				if sub.JobID != update.JobID {
					continue
				}
				select {
				case sub.Send <- update:
				default:
					close(sub.Send)
					delete(h.subscribers, sub)
				}
			}

		case reply := <-h.count:
			reply <- len(h.subscribers)

		case <-h.stop:
			for sub := range h.subscribers {
				close(sub.Send)
				delete(h.subscribers, sub)
			}
			return
		}
	}
}
