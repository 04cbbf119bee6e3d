// Package telemetry serves navigator snapshots over HTTP and websockets and
// accepts external stop requests.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ThymioNav/internal/nav"
	"ThymioNav/internal/slot"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

const writeWait = time.Second

// Server exposes the latest navigator snapshot:
//
//	GET  /api/state  latest snapshot as JSON
//	GET  /ws         snapshot stream, one JSON message per new snapshot
//	POST /api/stop   ask the navigator to stop
type Server struct {
	Addr     string
	Interval time.Duration

	snaps  *slot.Slot[nav.Snapshot]
	onStop func()

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewServer creates a server reading snapshots from snaps. onStop is called
// for every accepted stop request.
func NewServer(addr string, interval time.Duration, snaps *slot.Slot[nav.Snapshot], onStop func()) *Server {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &Server{
		Addr:     addr,
		Interval: interval,
		snaps:    snaps,
		onStop:   onStop,
		clients:  map[*websocket.Conn]bool{},
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/stop", s.handleStop)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// Run serves HTTP and streams snapshots until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.Addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[telemetry] listening on %s", s.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	go s.Stream(ctx)

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.closeClients()
	return err
}

// Stream broadcasts every new snapshot to websocket clients, checking each
// Interval, until ctx is done.
func (s *Server) Stream(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	var lastSeq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := s.snaps.Load()
			if !snap.Valid() || snap.Seq == lastSeq {
				continue
			}
			lastSeq = snap.Seq
			b, err := json.Marshal(snap.Value)
			if err != nil {
				log.Printf("[telemetry] encode snapshot: %v", err)
				continue
			}
			s.broadcast(b)
		}
	}
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap, ok := s.snaps.Value()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no snapshot yet"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	log.Printf("[telemetry] stop requested by %s", r.RemoteAddr)
	if s.onStop != nil {
		s.onStop()
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

// handleWS upgrades to a websocket, sends the current snapshot and registers
// the client for broadcasts.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.clients[conn] = true
	if snap, ok := s.snaps.Value(); ok {
		if b, err := json.Marshal(snap); err == nil {
			s.write(conn, b)
		}
	}
	s.mu.Unlock()

	go func() {
		defer s.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// broadcast sends msg to all connected websocket clients.
func (s *Server) broadcast(msg []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		s.write(c, msg)
	}
}

// write must be called with s.mu held.
func (s *Server) write(c *websocket.Conn, msg []byte) {
	_ = c.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
		log.Printf("[telemetry] drop client %s: %v", c.RemoteAddr(), err)
		delete(s.clients, c)
		_ = c.Close()
	}
}

func (s *Server) drop(c *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	_ = c.Close()
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"), time.Now().Add(writeWait))
		_ = c.Close()
		delete(s.clients, c)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[telemetry] write response: %v", err)
	}
}
