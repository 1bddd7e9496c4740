package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"quantum-bluff-server/internal/oracle"
	"quantum-bluff-server/internal/quantum"
)

const (
	// Inbound message budget per connection. Generous for a turn-based game.
	rateLimitMessages = 20
	rateLimitWindow   = time.Second

	idleTimeout   = 10 * time.Minute
	sweepInterval = time.Minute
)

type Server struct {
	cfg               Config
	connectionManager *ConnectionManager
	roomManager       *RoomManager
	rateLimiter       *RateLimiter
	health            *ConnectionHealth
	oracle            quantum.Oracle
	history           *HistoryStore
}

func NewServer() (*Server, *http.Server, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	var history *HistoryStore
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		history, err = NewHistoryStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("init history store: %w", err)
		}
		log.Println("Match history recording enabled")
	} else {
		log.Println("DATABASE_URL not set, match history disabled")
	}

	srv := &Server{
		cfg:               cfg,
		connectionManager: NewConnectionManager(),
		roomManager:       NewRoomManager(),
		rateLimiter:       NewRateLimiter(rateLimitMessages, rateLimitWindow),
		health:            NewConnectionHealth(),
		oracle:            oracle.New(cfg.OracleURL),
		history:           history,
	}

	go srv.sweepTask()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      srv.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return srv, httpServer, nil
}

// Shutdown closes every live websocket and releases the history pool.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, id := range s.connectionManager.SessionIDs() {
		if conn := s.connectionManager.GetConnection(id); conn != nil {
			conn.Close(websocket.StatusGoingAway, "Server shutting down")
		}
	}

	if s.history != nil {
		s.history.Close()
	}
	return nil
}

// sweepTask closes connections that have gone silent and trims rate-limit
// bookkeeping for them.
func (s *Server) sweepTask() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for range ticker.C {
		s.rateLimiter.Cleanup()

		for _, id := range s.health.GetInactiveConnections(idleTimeout) {
			conn := s.connectionManager.GetConnection(id)
			if conn != nil {
				log.Printf("Closing idle connection %s", id)
				conn.Close(websocket.StatusGoingAway, "Idle timeout")
			}
			s.health.RemoveConnection(id)
		}
	}
}
