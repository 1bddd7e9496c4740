package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"quantum-bluff-server/internal/quantum"
)

func (s *Server) RegisterRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.helloHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/history", s.historyHandler)
	mux.HandleFunc("/websocket", s.websocketHandler)

	return s.corsMiddleware(mux)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.AllowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) helloHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"message": "Quantum Bluff game server is running"})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	historyStatus := "disabled"
	if s.history != nil {
		historyStatus = "enabled"
	}
	writeJSON(w, HealthResponse{
		Status:  "ok",
		Rooms:   s.roomManager.RoomCount(),
		History: historyStatus,
	})
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "Match history is disabled", http.StatusNotFound)
		return
	}

	records, err := s.history.RecentMatches(r.Context(), 20)
	if err != nil {
		log.Printf("Failed to load match history: %v", err)
		http.Error(w, "Failed to load match history", http.StatusInternalServerError)
		return
	}
	writeJSON(w, records)
}

func writeJSON(w http.ResponseWriter, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(data); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{s.cfg.AllowedOrigin},
	})
	if err != nil {
		http.Error(w, "Failed to open websocket", http.StatusInternalServerError)
		return
	}
	defer socket.Close(websocket.StatusGoingAway, "Server closing")

	ctx := r.Context()

	sessionID := uuid.New().String()
	log.Printf("Player connected: %s", sessionID)
	s.connectionManager.AddConnection(sessionID, socket)

	defer s.handleDisconnect(sessionID)

	for {
		msgType, data, err := socket.Read(ctx)
		if err != nil {
			log.Printf("Connection %s read error: %v", sessionID, err)
			return
		}

		if msgType != websocket.MessageText {
			log.Printf("Non-text input from %s", sessionID)
			continue
		}

		if !s.rateLimiter.Allow(sessionID) {
			s.sendError(socket, ctx, "RATE_LIMITED: Too many messages, slow down")
			continue
		}
		s.health.UpdateActivity(sessionID)

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("Invalid JSON from %s: %v", sessionID, err)
			s.sendError(socket, ctx, "Invalid JSON")
			continue
		}

		if err := ValidateMessageType(msg.Type); err != nil {
			s.sendError(socket, ctx, err.Error())
			continue
		}

		log.Printf("Message type '%s' from %s", msg.Type, sessionID)

		switch msg.Type {
		case "ping":
			s.handlePing(socket, ctx, sessionID)

		case "join_game":
			s.handleJoinGame(socket, ctx, sessionID, msg.Payload)

		case "play_and_declare":
			s.handlePlayAndDeclare(socket, ctx, sessionID, msg.Payload)

		case "challenge_bluff":
			s.handleChallengeBluff(socket, ctx, sessionID)

		case "pass_bluff":
			s.handlePassBluff(socket, ctx, sessionID)

		case "request_rematch":
			s.handleRequestRematch(socket, ctx, sessionID)
		}
	}
}

// handleDisconnect tears the player's room down entirely. Either player
// leaving ends the match for both; the survivor is told before the room
// disappears.
func (s *Server) handleDisconnect(sessionID string) {
	s.connectionManager.RemoveConnection(sessionID)
	s.rateLimiter.RemoveConnection(sessionID)
	s.health.RemoveConnection(sessionID)
	log.Printf("Player disconnected: %s", sessionID)

	ar, err := s.roomManager.RemoveBySession(sessionID)
	if err != nil {
		// Session was never in a room, or the room died first. Not an error.
		return
	}

	ar.Lock()
	roomID := ar.Room.ID
	var survivor *quantum.Player
	if p := ar.Room.Opponent(sessionID); p != nil {
		survivor = p
	}
	ar.Unlock()

	log.Printf("Room %s destroyed after disconnect of %s", roomID, sessionID)

	if survivor == nil {
		return
	}
	conn := s.connectionManager.GetConnection(survivor.ID)
	if conn == nil {
		return
	}
	s.sendMessage(conn, context.Background(), ServerMessage{
		Type: "opponent_left",
		Payload: OpponentLeftNotification{
			Message: "Your opponent left the game.",
		},
	})
}

func (s *Server) handlePing(socket *websocket.Conn, ctx context.Context, sessionID string) {
	if err := s.sendMessage(socket, ctx, ServerMessage{Type: "pong", Payload: struct{}{}}); err != nil {
		log.Printf("Failed to send pong to %s: %v", sessionID, err)
	}
}

func (s *Server) handleJoinGame(socket *websocket.Conn, ctx context.Context, sessionID string, payload json.RawMessage) {
	var req JoinGameRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(socket, ctx, "Invalid join_game payload")
		return
	}

	if err := ValidateDisplayName(req.DisplayName); err != nil {
		s.sendError(socket, ctx, err.Error())
		return
	}
	displayName := strings.TrimSpace(req.DisplayName)

	ar, err := s.roomManager.JoinOrCreate(sessionID, displayName)
	if err != nil {
		s.sendError(socket, ctx, err.Error())
		return
	}

	ar.Lock()
	roomID := ar.Room.ID
	playerCount := len(ar.Room.Players)
	ar.Unlock()
	log.Printf("Player %s (%s) joined room %s (%d/2)", sessionID, displayName, roomID, playerCount)

	s.broadcastGameUpdate(ar)
}

func (s *Server) handlePlayAndDeclare(socket *websocket.Conn, ctx context.Context, sessionID string, payload json.RawMessage) {
	var req PlayAndDeclareRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(socket, ctx, "Invalid play_and_declare payload")
		return
	}

	ar, err := s.roomManager.RoomBySession(sessionID)
	if err != nil {
		s.sendError(socket, ctx, err.Error())
		return
	}

	playReq := quantum.PlayRequest{
		GateCardID:     req.GateCardID,
		GateType:       quantum.GateType(req.GateType),
		QubitID:        req.QubitID,
		ControlQubitID: req.ControlQubitID,
		DeclaredState:  req.DeclaredState,
	}

	// Stage under the room lock and claim the in-flight slot, then resolve
	// the gate with no lock held. Nothing in the room mutates until the
	// oracle answers and the guards pass a second time.
	ar.Lock()
	if !ar.BeginResolve() {
		ar.Unlock()
		s.sendError(socket, ctx, "RESOLUTION_PENDING: Another play is being resolved")
		return
	}
	staged, err := ar.Room.StagePlay(sessionID, playReq)
	if err != nil {
		ar.EndResolve()
		ar.Unlock()
		s.sendError(socket, ctx, err.Error())
		return
	}
	ar.Unlock()

	newState, resolveErr := quantum.ResolveGate(ctx, s.oracle, staged.PriorState, staged.Gate, staged.ControlState)

	// The room may have been destroyed while the oracle call was in flight.
	// The registry lookup happens before re-taking the room lock: a room lock
	// is never held across a registry call, so a disconnect holding the
	// registry lock can always finish.
	current, liveErr := s.roomManager.RoomBySession(sessionID)

	ar.Lock()
	ar.EndResolve()

	if resolveErr != nil {
		// Oracle failure: no move occurred. Hand, turn and decks untouched;
		// only the actor hears about it.
		ar.Unlock()
		log.Printf("Gate resolution failed for %s in room: %v", sessionID, resolveErr)
		s.sendError(socket, ctx, "ORACLE_UNAVAILABLE: Move could not be resolved, try again")
		return
	}

	if liveErr != nil || current != ar {
		ar.Unlock()
		return
	}

	err = ar.Room.CommitPlay(sessionID, playReq, newState)
	if err == nil {
		ar.UpdatedAt = time.Now()
	}
	ar.Unlock()

	if err != nil {
		s.sendError(socket, ctx, err.Error())
		return
	}

	s.broadcastGameUpdate(ar)
}

func (s *Server) handleChallengeBluff(socket *websocket.Conn, ctx context.Context, sessionID string) {
	s.resolveDeclaration(socket, ctx, sessionID, func(room *quantum.Room) error {
		return room.Challenge(sessionID)
	})
}

func (s *Server) handlePassBluff(socket *websocket.Conn, ctx context.Context, sessionID string) {
	s.resolveDeclaration(socket, ctx, sessionID, func(room *quantum.Room) error {
		return room.Pass(sessionID)
	})
}

// resolveDeclaration runs a challenge or pass, then the win check fallout:
// broadcast, and a history row when the game just ended.
func (s *Server) resolveDeclaration(socket *websocket.Conn, ctx context.Context, sessionID string, resolve func(*quantum.Room) error) {
	ar, err := s.roomManager.RoomBySession(sessionID)
	if err != nil {
		s.sendError(socket, ctx, err.Error())
		return
	}

	ar.Lock()
	if ar.resolving {
		ar.Unlock()
		s.sendError(socket, ctx, "RESOLUTION_PENDING: Another play is being resolved")
		return
	}
	err = resolve(ar.Room)
	if err != nil {
		ar.Unlock()
		s.sendError(socket, ctx, err.Error())
		return
	}
	ar.UpdatedAt = time.Now()

	var record *MatchRecord
	if ar.Room.Phase == quantum.PhaseGameOver {
		record = buildMatchRecord(ar.Room)
	}
	ar.Unlock()

	s.broadcastGameUpdate(ar)

	if record != nil && s.history != nil {
		go func() {
			recordCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.history.RecordMatch(recordCtx, *record); err != nil {
				log.Printf("Failed to record match %s: %v", record.RoomID, err)
			}
		}()
	}
}

func buildMatchRecord(room *quantum.Room) *MatchRecord {
	if len(room.Players) != 2 {
		return nil
	}
	p1, p2 := room.Players[0], room.Players[1]

	winner := p1.Name
	if p2.Score > p1.Score {
		winner = p2.Name
	}

	return &MatchRecord{
		RoomID:       room.ID,
		WinnerName:   winner,
		Player1Name:  p1.Name,
		Player1Score: p1.Score,
		Player2Name:  p2.Name,
		Player2Score: p2.Score,
		FinishedAt:   time.Now(),
	}
}

func (s *Server) handleRequestRematch(socket *websocket.Conn, ctx context.Context, sessionID string) {
	ar, err := s.roomManager.RoomBySession(sessionID)
	if err != nil {
		s.sendError(socket, ctx, err.Error())
		return
	}

	ar.Lock()
	err = ar.Room.RequestRematch(sessionID)
	if err == nil {
		ar.UpdatedAt = time.Now()
	}
	ar.Unlock()

	if err != nil {
		s.sendError(socket, ctx, err.Error())
		return
	}

	s.broadcastGameUpdate(ar)
}

// broadcastGameUpdate sends each player their own view of the room. Frames
// are marshaled under the room lock so a later transition can never tear a
// snapshot mid-serialization.
func (s *Server) broadcastGameUpdate(ar *ActiveRoom) {
	type frame struct {
		sessionID string
		data      []byte
	}

	ar.Lock()
	frames := make([]frame, 0, len(ar.Room.Players))
	for _, p := range ar.Room.Players {
		data, err := json.Marshal(ServerMessage{
			Type:    "game_update",
			Payload: ar.Room.GetClientState(p.ID),
		})
		if err != nil {
			log.Printf("Failed to marshal game update for %s: %v", p.ID, err)
			continue
		}
		frames = append(frames, frame{sessionID: p.ID, data: data})
	}
	ar.Unlock()

	for _, f := range frames {
		conn := s.connectionManager.GetConnection(f.sessionID)
		if conn == nil {
			continue
		}
		if err := conn.Write(context.Background(), websocket.MessageText, f.data); err != nil {
			log.Printf("Failed to broadcast game update to %s: %v", f.sessionID, err)
		}
	}
}

func (s *Server) sendMessage(socket *websocket.Conn, ctx context.Context, msg ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	return socket.Write(ctx, websocket.MessageText, data)
}

func (s *Server) sendError(socket *websocket.Conn, ctx context.Context, msg string) {
	err := s.sendMessage(socket, ctx, ServerMessage{
		Type:    "error",
		Payload: ErrorMessage{Message: msg},
	})
	if err != nil {
		log.Printf("Failed to send error message: %v", err)
	}
}
