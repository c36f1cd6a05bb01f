// Package wsbridge relays publish notifications from the store's pub/sub
// channels to websocket clients. Delivery stays best-effort, at most once;
// clients that fall behind are dropped.
package wsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"weightwire/internal/domain/keys"
	"weightwire/internal/infrastructure/storage/redisstore"
)

// Frame is one notification pushed to websocket clients.
type Frame struct {
	Strategy string `json:"strategy"`
	Symbol   string `json:"symbol"`
	Dt       string `json:"dt"`
	Weight   string `json:"weight"`
	Price    string `json:"price"`
	Ref      string `json:"ref"`
}

type Server struct {
	store   *redisstore.Store
	pattern string

	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]chan []byte
}

func New(store *redisstore.Store, ks keys.Schema) *Server {
	return &Server{
		store:   store,
		pattern: ks.ChannelPattern(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]chan []byte),
	}
}

// Run serves /ws on addr and pumps notifications until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	sub := s.store.PSubscribe(ctx, s.pattern)
	defer sub.Close()
	go s.pump(ctx, sub.Channel())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Str("pattern", s.pattern).Msg("websocket bridge listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) pump(ctx context.Context, ch <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			frame, ok := ParseNotification(msg.Payload)
			if !ok {
				log.Warn().Str("payload", msg.Payload).Msg("unparseable notification")
				continue
			}
			b, err := json.Marshal(frame)
			if err != nil {
				continue
			}
			s.broadcast(b)
		}
	}
}

func (s *Server) broadcast(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, ch := range s.conns {
		select {
		case ch <- b:
		default:
			// slow client, drop it
			delete(s.conns, conn)
			close(ch)
			_ = conn.Close()
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	ch := make(chan []byte, 64)
	s.mu.Lock()
	s.conns[conn] = ch
	s.mu.Unlock()
	log.Info().Str("remote", conn.RemoteAddr().String()).Msg("websocket client connected")

	go func() {
		for b := range ch {
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				break
			}
		}
		_ = conn.Close()
	}()

	// read loop only to notice the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.mu.Lock()
	if ch, ok := s.conns[conn]; ok {
		delete(s.conns, conn)
		close(ch)
	}
	s.mu.Unlock()
	_ = conn.Close()
}

// ParseNotification splits a "prefix:strategy:symbol:stamp:weight:price:ref"
// payload. Ref keeps any colons it contains.
func ParseNotification(payload string) (Frame, bool) {
	parts := strings.SplitN(payload, ":", 7)
	if len(parts) != 7 {
		return Frame{}, false
	}
	dt, err := keys.ParseStamp(parts[3])
	if err != nil {
		return Frame{}, false
	}
	return Frame{
		Strategy: parts[1],
		Symbol:   parts[2],
		Dt:       dt.Format("2006-01-02 15:04:05"),
		Weight:   parts[4],
		Price:    parts[5],
		Ref:      parts[6],
	}, true
}
