// Package monitor serves live board status over HTTP and WebSocket.
//
// Endpoints:
//
//	/status    one JSON snapshot of the board
//	/metrics   Prometheus text format
//	/health    liveness probe
//	/stream    WebSocket pushing a snapshot every broadcast interval
package monitor

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"adda-hat/pkg/log"
	"adda-hat/pkg/metrics"
)

// Status is one snapshot of the board state.
type Status struct {
	Time     time.Time          `json:"time"`
	Channels []float64          `json:"channels"`
	Outputs  map[string]float64 `json:"outputs"`
	Scans    float64            `json:"scans"`
	Samples  float64            `json:"samples"`
	Errors   float64            `json:"errors"`
}

// Source provides snapshots for the server to publish.
type Source interface {
	Snapshot() Status
}

// Config holds server settings.
type Config struct {
	// Addr to listen on, e.g. ":9160".
	Addr string

	Source  Source
	Metrics *metrics.Acquisition

	// BroadcastInterval between pushed snapshots. Zero selects one
	// second.
	BroadcastInterval time.Duration
}

// Server publishes board status.
type Server struct {
	source   Source
	acq      *metrics.Acquisition
	interval time.Duration
	logger   *log.Logger

	httpServer *http.Server
	upgrader   websocket.Upgrader

	clientMu sync.Mutex
	clients  map[int64]*client
	nextID   int64

	running atomic.Bool
	stopCh  chan struct{}
}

// New creates a Server.
func New(cfg Config) *Server {
	interval := cfg.BroadcastInterval
	if interval == 0 {
		interval = time.Second
	}
	s := &Server{
		source:   cfg.Source,
		acq:      cfg.Metrics,
		interval: interval,
		logger:   log.GetLogger("monitor"),
		clients:  make(map[int64]*client),
		stopCh:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the route table. Exposed for tests and embedding.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stream", s.handleStream)
	return mux
}

// Start serves until Stop is called. Blocks.
func (s *Server) Start() error {
	s.running.Store(true)
	s.logger.WithField("addr", s.httpServer.Addr).Info("monitor listening")
	go s.broadcastLoop()
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop closes the listener and every streaming client.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	close(s.stopCh)

	s.clientMu.Lock()
	for _, c := range s.clients {
		c.close()
	}
	s.clients = make(map[int64]*client)
	s.clientMu.Unlock()

	return s.httpServer.Close()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.source.Snapshot()); err != nil {
		s.logger.WithError(err).Warn("status encode")
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	if s.acq == nil {
		return
	}
	w.Write([]byte(s.acq.Gather()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("websocket upgrade")
		return
	}

	c := &client{
		id:     atomic.AddInt64(&s.nextID, 1),
		conn:   conn,
		sendCh: make(chan Status, 16),
		done:   make(chan struct{}),
	}
	s.clientMu.Lock()
	s.clients[c.id] = c
	s.clientMu.Unlock()
	s.logger.WithField("client", c.id).Debug("stream connected")

	// Push one snapshot immediately so a new client does not wait a
	// full interval.
	c.send(s.source.Snapshot())

	go c.writePump()
	c.readPump() // returns when the peer goes away
	s.removeClient(c)
}

func (s *Server) removeClient(c *client) {
	s.clientMu.Lock()
	delete(s.clients, c.id)
	s.clientMu.Unlock()
	c.close()
	s.logger.WithField("client", c.id).Debug("stream disconnected")
}

func (s *Server) broadcastLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.broadcast()
		}
	}
}

// broadcast pushes one snapshot to every connected client.
func (s *Server) broadcast() {
	s.clientMu.Lock()
	if len(s.clients) == 0 {
		s.clientMu.Unlock()
		return
	}
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clientMu.Unlock()

	st := s.source.Snapshot()
	for _, c := range clients {
		c.send(st)
	}
}

// client is one WebSocket stream subscriber.
type client struct {
	id     int64
	conn   *websocket.Conn
	sendCh chan Status
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

func (c *client) send(st Status) {
	select {
	case c.sendCh <- st:
	case <-c.done:
	default:
		// Slow consumer, drop the frame.
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	c.conn.Close()
}

func (c *client) readPump() {
	c.conn.SetReadLimit(4096)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ping := time.NewTicker(30 * time.Second)
	defer func() {
		ping.Stop()
		c.close()
	}()
	for {
		select {
		case <-c.done:
			return
		case st := <-c.sendCh:
			if err := c.conn.WriteJSON(st); err != nil {
				return
			}
		case <-ping.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
