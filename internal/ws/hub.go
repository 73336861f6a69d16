package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/evetabi/settlement/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeDeadline  = 10 * time.Second
	pingInterval   = 30 * time.Second
	pongWait       = 35 * time.Second // > pingInterval
	maxMessageSize = 512              // inbound frames are pongs only
	outboxSize     = 256
	queueSize      = 512
)

// ErrBroadcastFull is returned by Publish when the event queue is full.
var ErrBroadcastFull = errors.New("ws: broadcast channel full")

// TokenVerifier resolves an access token to the caller's user id.
type TokenVerifier func(token string) (uuid.UUID, error)

// subscriber is one socket. market is uuid.Nil for the all-markets stream.
type subscriber struct {
	conn   *websocket.Conn
	outbox chan []byte
	userID uuid.UUID
	market uuid.UUID
}

type frame struct {
	market uuid.UUID
	data   []byte
}

// Hub streams market events to WebSocket subscribers. Publish enqueues; Run
// fans the queue out and must be running for anything to be delivered.
type Hub struct {
	mu       sync.Mutex
	byMarket map[uuid.UUID]map[*subscriber]struct{}
	count    int
	stopped  bool

	queue    chan frame
	verify   TokenVerifier // nil: every socket is anonymous
	upgrader websocket.Upgrader
}

// NewHub returns a Hub accepting sockets from allowedOrigins; an empty list
// or "*" accepts any origin.
func NewHub(verify TokenVerifier, allowedOrigins []string) *Hub {
	return &Hub{
		byMarket: make(map[uuid.UUID]map[*subscriber]struct{}),
		queue:    make(chan frame, queueSize),
		verify:   verify,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// Run delivers queued events until ctx is done, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.stop()
			return
		case f := <-h.queue:
			h.fanOut(f)
		}
	}
}

// ConnectedCount returns the number of open sockets.
func (h *Hub) ConnectedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Publish queues ev for the subscribers of its market and the all-markets
// stream. It never blocks.
func (h *Hub) Publish(_ context.Context, ev domain.Event) error {
	data, err := json.Marshal(NewEventMessage(ev))
	if err != nil {
		return err
	}
	select {
	case h.queue <- frame{market: ev.MarketID, data: data}:
		return nil
	default:
		return ErrBroadcastFull
	}
}

// fanOut hands f to every interested outbox. A subscriber whose outbox is
// full misses the frame; its writer is not waited on.
func (h *Hub) fanOut(f frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, key := range []uuid.UUID{f.market, uuid.Nil} {
		for s := range h.byMarket[key] {
			select {
			case s.outbox <- f.data:
			default:
			}
		}
		if f.market == uuid.Nil {
			break
		}
	}
}

func (h *Hub) add(s *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	set, ok := h.byMarket[s.market]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.byMarket[s.market] = set
	}
	set[s] = struct{}{}
	h.count++
	return true
}

// remove is idempotent; the outbox is closed exactly once.
func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.byMarket[s.market]
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.byMarket, s.market)
	}
	h.count--
	close(s.outbox)
}

func (h *Hub) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	for key, set := range h.byMarket {
		for s := range set {
			close(s.outbox)
		}
		delete(h.byMarket, key)
	}
	h.count = 0
}

// ServeWs upgrades the request. ?market_id= narrows the stream to one market;
// ?token= identifies the caller, and a bad token leaves the socket anonymous
// with an error frame.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var market uuid.UUID
	if v := q.Get("market_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			http.Error(w, "invalid market_id", http.StatusBadRequest)
			return
		}
		market = id
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws.ServeWs: upgrade: %v", err)
		return
	}
	s := &subscriber{conn: conn, outbox: make(chan []byte, outboxSize), market: market}

	if token := q.Get("token"); token != "" && h.verify != nil {
		if id, err := h.verify(token); err != nil {
			s.sendError(domain.ErrorCode(err), err.Error())
		} else {
			s.userID = id
		}
	}

	if !h.add(s) {
		conn.Close()
		return
	}
	go s.writeLoop()
	go h.readLoop(s)
}

// sendError queues an error frame ahead of any event.
func (s *subscriber) sendError(code, message string) {
	data, err := json.Marshal(ErrorMessage{Type: MsgTypeError, Code: code, Message: message})
	if err != nil {
		return
	}
	select {
	case s.outbox <- data:
	default:
	}
}

// writeLoop owns all writes to the socket: queued frames and keep-alive pings.
func (s *subscriber) writeLoop() {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data, open := <-s.outbox:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !open {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop keeps the read deadline moving on pongs and drops the subscriber
// when the socket goes away. Inbound payloads are ignored.
func (h *Hub) readLoop(s *subscriber) {
	defer func() {
		h.remove(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws: socket of user %s closed: %v", s.userID, err)
			}
			return
		}
	}
}
