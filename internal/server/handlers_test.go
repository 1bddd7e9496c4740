package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"

	"quantum-bluff-server/internal/quantum"
)

// stubOracle answers every single-qubit gate with a fixed state, or fails.
type stubOracle struct {
	state string
	err   error
}

func (o stubOracle) ApplyGate(ctx context.Context, priorState string, gate quantum.GateType) (string, error) {
	return o.state, o.err
}

// blockingOracle parks every call until released, so a test can interleave
// other events with an in-flight gate resolution.
type blockingOracle struct {
	entered chan struct{}
	release chan struct{}
	state   string
}

func (o *blockingOracle) ApplyGate(ctx context.Context, priorState string, gate quantum.GateType) (string, error) {
	o.entered <- struct{}{}
	<-o.release
	return o.state, nil
}

func setupTestServer(oracle quantum.Oracle) (*Server, string, func()) {
	s := &Server{
		cfg:               Config{AllowedOrigin: "*"},
		connectionManager: NewConnectionManager(),
		roomManager:       NewRoomManager(),
		rateLimiter:       NewRateLimiter(50, time.Second),
		health:            NewConnectionHealth(),
		oracle:            oracle,
	}

	server := httptest.NewServer(http.HandlerFunc(s.websocketHandler))
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/websocket"

	return s, url, server.Close
}

func mustMarshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func sendMessage(t *testing.T, ctx context.Context, conn *websocket.Conn, msgType string, payload interface{}) {
	t.Helper()
	msg := ClientMessage{Type: msgType}
	if payload != nil {
		msg.Payload = mustMarshal(payload)
	}
	if err := conn.Write(ctx, websocket.MessageText, mustMarshal(msg)); err != nil {
		t.Fatalf("Failed to send %s: %v", msgType, err)
	}
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) ServerMessage {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal server message: %v", err)
	}
	return msg
}

// readGameUpdate reads the next message and requires it to be a game_update.
func readGameUpdate(t *testing.T, ctx context.Context, conn *websocket.Conn) quantum.ClientState {
	t.Helper()
	msg := readMessage(t, ctx, conn)
	if msg.Type != "game_update" {
		t.Fatalf("Expected game_update, got %s (%v)", msg.Type, msg.Payload)
	}
	var state quantum.ClientState
	if err := json.Unmarshal(mustMarshal(msg.Payload), &state); err != nil {
		t.Fatalf("Failed to unmarshal game state: %v", err)
	}
	return state
}

func readError(t *testing.T, ctx context.Context, conn *websocket.Conn) string {
	t.Helper()
	msg := readMessage(t, ctx, conn)
	if msg.Type != "error" {
		t.Fatalf("Expected error, got %s (%v)", msg.Type, msg.Payload)
	}
	var errMsg ErrorMessage
	if err := json.Unmarshal(mustMarshal(msg.Payload), &errMsg); err != nil {
		t.Fatalf("Failed to unmarshal error payload: %v", err)
	}
	return errMsg.Message
}

// joinTwoPlayers connects Alice and Bob into one room and returns both
// connections with their post-pairing snapshots. Alice holds the first turn.
func joinTwoPlayers(t *testing.T, ctx context.Context, url string) (*websocket.Conn, *websocket.Conn, quantum.ClientState, quantum.ClientState) {
	t.Helper()

	conn1, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Alice failed to connect: %v", err)
	}
	sendMessage(t, ctx, conn1, "join_game", JoinGameRequest{DisplayName: "Alice"})
	waiting := readGameUpdate(t, ctx, conn1)
	if waiting.Phase != quantum.PhaseWaiting {
		t.Fatalf("Room should wait for a second player, phase = %s", waiting.Phase)
	}

	conn2, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Bob failed to connect: %v", err)
	}
	sendMessage(t, ctx, conn2, "join_game", JoinGameRequest{DisplayName: "Bob"})

	state1 := readGameUpdate(t, ctx, conn1)
	state2 := readGameUpdate(t, ctx, conn2)
	return conn1, conn2, state1, state2
}

func sessionID(state quantum.ClientState) string {
	for _, p := range state.Players {
		if p.IsYou {
			return p.ID
		}
	}
	return ""
}

func scoreOf(state quantum.ClientState, playerID string) int {
	for _, p := range state.Players {
		if p.ID == playerID {
			return p.Score
		}
	}
	return -999
}

// buildPlay picks a deterministic play from the viewer's hand: the face-up
// starter qubit as target, and the first non-CNOT gate card. With the stub
// oracle answering every single-qubit gate, the true post-gate state is
// oracleState. When the hand is all CNOTs, the play uses a face-down (blank)
// control, which never fires, so the starter keeps its |0>.
func buildPlay(state quantum.ClientState, oracleState string) (PlayAndDeclareRequest, string) {
	target := state.MyHand[0]

	for _, card := range state.GateCards {
		if card.Type != quantum.GateControlledNot {
			return PlayAndDeclareRequest{
				GateCardID: card.ID,
				GateType:   string(card.Type),
				QubitID:    target.ID,
			}, oracleState
		}
	}

	card := state.GateCards[0]
	return PlayAndDeclareRequest{
		GateCardID:     card.ID,
		GateType:       string(card.Type),
		QubitID:        target.ID,
		ControlQubitID: state.MyHand[1].ID,
	}, target.State
}

// ============================================================================
// JOIN GAME TESTS
// ============================================================================

func TestHandleJoinGame_CreatesWaitingRoom(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	srv, url, cleanup := setupTestServer(stubOracle{state: quantum.StateOne})
	defer cleanup()

	conn, _, err := websocket.Dial(ctx, url, nil)
	assert.NoError(err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	sendMessage(t, ctx, conn, "join_game", JoinGameRequest{DisplayName: "Alice"})

	state := readGameUpdate(t, ctx, conn)
	assert.Equal(quantum.PhaseWaiting, state.Phase)
	assert.Len(state.Players, 1)
	assert.Equal("Alice", state.Players[0].Name)
	assert.True(state.YourTurn)
	assert.Equal("101", state.TargetState)

	assert.Len(state.MyHand, 3)
	assert.False(state.MyHand[0].FaceDown)
	assert.Equal(quantum.StateZero, state.MyHand[0].State)
	assert.True(state.MyHand[1].FaceDown)
	assert.Len(state.GateCards, 3)

	assert.Equal(1, srv.roomManager.RoomCount())
}

func TestHandleJoinGame_InvalidName(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	srv, url, cleanup := setupTestServer(stubOracle{state: quantum.StateOne})
	defer cleanup()

	conn, _, err := websocket.Dial(ctx, url, nil)
	assert.NoError(err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	sendMessage(t, ctx, conn, "join_game", JoinGameRequest{DisplayName: "   "})

	assert.Contains(readError(t, ctx, conn), "NAME_INVALID")
	assert.Equal(0, srv.roomManager.RoomCount())
}

func TestHandleJoinGame_PairsPlayers(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	_, url, cleanup := setupTestServer(stubOracle{state: quantum.StateOne})
	defer cleanup()

	conn1, conn2, state1, state2 := joinTwoPlayers(t, ctx, url)
	defer conn1.Close(websocket.StatusNormalClosure, "")
	defer conn2.Close(websocket.StatusNormalClosure, "")

	assert.Equal(quantum.PhaseInGame, state1.Phase)
	assert.Equal(quantum.PhaseInGame, state2.Phase)
	assert.Len(state1.Players, 2)
	assert.Equal(state1.RoomID, state2.RoomID)

	// Alice created the room and keeps the turn.
	assert.True(state1.YourTurn)
	assert.False(state2.YourTurn)

	// Bob sees Alice's starter card but not her face-down ones.
	for _, p := range state2.Players {
		if p.IsYou {
			continue
		}
		assert.False(p.Hand[0].FaceDown)
		assert.Equal(quantum.StateZero, p.Hand[0].State)
		for _, q := range p.Hand[1:] {
			assert.True(q.FaceDown)
			assert.Empty(q.State)
		}
	}
}

func TestHandleJoinGame_DoubleJoin(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	_, url, cleanup := setupTestServer(stubOracle{state: quantum.StateOne})
	defer cleanup()

	conn, _, err := websocket.Dial(ctx, url, nil)
	assert.NoError(err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	sendMessage(t, ctx, conn, "join_game", JoinGameRequest{DisplayName: "Alice"})
	readGameUpdate(t, ctx, conn)

	sendMessage(t, ctx, conn, "join_game", JoinGameRequest{DisplayName: "Alice"})
	assert.Contains(readError(t, ctx, conn), "ALREADY_IN_ROOM")
}

func TestHandleJoinGame_TrimsDisplayName(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	_, url, cleanup := setupTestServer(stubOracle{state: quantum.StateOne})
	defer cleanup()

	conn, _, err := websocket.Dial(ctx, url, nil)
	assert.NoError(err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	sendMessage(t, ctx, conn, "join_game", JoinGameRequest{DisplayName: "  Alice  "})

	state := readGameUpdate(t, ctx, conn)
	assert.Equal("Alice", state.Players[0].Name)
	assert.Contains(state.LastMessage, "Welcome Alice!")
}

// ============================================================================
// PLAY AND DECLARE TESTS
// ============================================================================

func TestHandlePlayAndDeclare_Success(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	_, url, cleanup := setupTestServer(stubOracle{state: quantum.StateOne})
	defer cleanup()

	conn1, conn2, state1, _ := joinTwoPlayers(t, ctx, url)
	defer conn1.Close(websocket.StatusNormalClosure, "")
	defer conn2.Close(websocket.StatusNormalClosure, "")

	play, trueState := buildPlay(state1, quantum.StateOne)
	play.DeclaredState = trueState
	sendMessage(t, ctx, conn1, "play_and_declare", play)

	after1 := readGameUpdate(t, ctx, conn1)
	after2 := readGameUpdate(t, ctx, conn2)

	// Turn passes to Bob, a declaration is pending and the gate card was
	// replaced from the deck.
	assert.False(after1.YourTurn)
	assert.True(after2.YourTurn)
	assert.NotNil(after2.ActiveDeclaration)
	assert.Equal(trueState, after2.ActiveDeclaration.DeclaredState)
	assert.Equal(sessionID(state1), after2.ActiveDeclaration.PlayerID)
	assert.Len(after1.GateCards, 3)
	assert.NotNil(after2.LastMove)
	assert.Equal(play.QubitID, after2.LastMove.QubitID)
}

func TestHandlePlayAndDeclare_NotYourTurn(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	_, url, cleanup := setupTestServer(stubOracle{state: quantum.StateOne})
	defer cleanup()

	conn1, conn2, _, state2 := joinTwoPlayers(t, ctx, url)
	defer conn1.Close(websocket.StatusNormalClosure, "")
	defer conn2.Close(websocket.StatusNormalClosure, "")

	play, trueState := buildPlay(state2, quantum.StateOne)
	play.DeclaredState = trueState
	sendMessage(t, ctx, conn2, "play_and_declare", play)

	assert.Contains(readError(t, ctx, conn2), "NOT_YOUR_TURN")
}

func TestHandlePlayAndDeclare_OracleFailure(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	srv, url, cleanup := setupTestServer(stubOracle{err: context.DeadlineExceeded})
	defer cleanup()

	conn1, conn2, state1, _ := joinTwoPlayers(t, ctx, url)
	defer conn1.Close(websocket.StatusNormalClosure, "")
	defer conn2.Close(websocket.StatusNormalClosure, "")

	play, _ := buildPlay(state1, quantum.StateOne)
	play.DeclaredState = quantum.StateOne

	// A CNOT with an inactive control resolves locally and never consults the
	// oracle, so this test only makes sense for single-qubit gates.
	if play.GateType == string(quantum.GateControlledNot) {
		t.Skip("Drawn hand is all CNOTs, no oracle call to fail")
	}

	sendMessage(t, ctx, conn1, "play_and_declare", play)
	assert.Contains(readError(t, ctx, conn1), "ORACLE_UNAVAILABLE")

	// The move never happened: no declaration, same turn, gate card still
	// in hand.
	ar, err := srv.roomManager.RoomBySession(sessionID(state1))
	assert.NoError(err)
	ar.Lock()
	assert.Nil(ar.Room.ActiveDeclaration)
	assert.Equal(sessionID(state1), ar.Room.CurrentTurn)
	assert.Len(ar.Room.Players[0].GateCards, 3)
	ar.Unlock()
}

func TestHandlePlayAndDeclare_RacingDisconnect(t *testing.T) {
	assert := assert.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	oracle := &blockingOracle{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
		state:   quantum.StateOne,
	}
	srv, url, cleanup := setupTestServer(oracle)
	defer cleanup()

	conn1, conn2, state1, _ := joinTwoPlayers(t, ctx, url)
	defer conn1.Close(websocket.StatusNormalClosure, "")

	play, trueState := buildPlay(state1, quantum.StateOne)
	play.DeclaredState = trueState

	// A CNOT with an inactive control resolves locally; only a single-qubit
	// gate leaves the resolution window open.
	if play.GateType == string(quantum.GateControlledNot) {
		t.Skip("Drawn hand is all CNOTs, no oracle round trip to race")
	}

	sendMessage(t, ctx, conn1, "play_and_declare", play)

	// Wait for the resolution to be in flight, then rip the room away.
	select {
	case <-oracle.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("Oracle was never consulted")
	}
	conn2.Close(websocket.StatusNormalClosure, "leaving")

	msg := readMessage(t, ctx, conn1)
	assert.Equal("opponent_left", msg.Type)
	assert.Equal(0, srv.roomManager.RoomCount())

	close(oracle.release)

	// The orphaned play is dropped, nothing deadlocks, and both the
	// connection and the registry keep working.
	sendMessage(t, ctx, conn1, "ping", nil)
	assert.Equal("pong", readMessage(t, ctx, conn1).Type)

	sendMessage(t, ctx, conn1, "join_game", JoinGameRequest{DisplayName: "Alice"})
	fresh := readGameUpdate(t, ctx, conn1)
	assert.Equal(quantum.PhaseWaiting, fresh.Phase)
}

func TestHandlePlayAndDeclare_WhileDeclarationPending(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	_, url, cleanup := setupTestServer(stubOracle{state: quantum.StateOne})
	defer cleanup()

	conn1, conn2, state1, _ := joinTwoPlayers(t, ctx, url)
	defer conn1.Close(websocket.StatusNormalClosure, "")
	defer conn2.Close(websocket.StatusNormalClosure, "")

	play, trueState := buildPlay(state1, quantum.StateOne)
	play.DeclaredState = trueState
	sendMessage(t, ctx, conn1, "play_and_declare", play)
	readGameUpdate(t, ctx, conn1)
	state2 := readGameUpdate(t, ctx, conn2)

	// Bob has the turn but must respond to the declaration, not play a gate.
	play2, trueState2 := buildPlay(state2, quantum.StateOne)
	play2.DeclaredState = trueState2
	sendMessage(t, ctx, conn2, "play_and_declare", play2)

	assert.Contains(readError(t, ctx, conn2), "DECLARATION_PENDING")
}

// ============================================================================
// CHALLENGE AND PASS TESTS
// ============================================================================

func TestHandleChallengeBluff_CatchesBluff(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	_, url, cleanup := setupTestServer(stubOracle{state: quantum.StateOne})
	defer cleanup()

	conn1, conn2, state1, state2 := joinTwoPlayers(t, ctx, url)
	defer conn1.Close(websocket.StatusNormalClosure, "")
	defer conn2.Close(websocket.StatusNormalClosure, "")

	alice := sessionID(state1)
	bob := sessionID(state2)

	// The true state is never |-> with this oracle, so declaring it is a
	// guaranteed bluff.
	play, _ := buildPlay(state1, quantum.StateOne)
	play.DeclaredState = quantum.StateMinus
	sendMessage(t, ctx, conn1, "play_and_declare", play)
	readGameUpdate(t, ctx, conn1)
	readGameUpdate(t, ctx, conn2)

	sendMessage(t, ctx, conn2, "challenge_bluff", nil)
	after1 := readGameUpdate(t, ctx, conn1)
	after2 := readGameUpdate(t, ctx, conn2)

	assert.Equal(2, scoreOf(after2, bob))
	assert.Equal(-1, scoreOf(after2, alice))
	assert.Nil(after2.ActiveDeclaration)
	assert.Nil(after2.LastMove)
	assert.True(after2.YourTurn, "Challenger should take the turn")
	assert.False(after1.YourTurn)
	assert.Contains(after2.LastMessage, "Challenge SUCCESSFUL")
}

func TestHandleChallengeBluff_AgainstHonestDeclaration(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	_, url, cleanup := setupTestServer(stubOracle{state: quantum.StateOne})
	defer cleanup()

	conn1, conn2, state1, state2 := joinTwoPlayers(t, ctx, url)
	defer conn1.Close(websocket.StatusNormalClosure, "")
	defer conn2.Close(websocket.StatusNormalClosure, "")

	alice := sessionID(state1)
	bob := sessionID(state2)

	play, trueState := buildPlay(state1, quantum.StateOne)
	play.DeclaredState = trueState
	sendMessage(t, ctx, conn1, "play_and_declare", play)
	readGameUpdate(t, ctx, conn1)
	readGameUpdate(t, ctx, conn2)

	sendMessage(t, ctx, conn2, "challenge_bluff", nil)
	readGameUpdate(t, ctx, conn1)
	after2 := readGameUpdate(t, ctx, conn2)

	assert.Equal(-1, scoreOf(after2, bob))
	assert.Equal(2, scoreOf(after2, alice))
	assert.Contains(after2.LastMessage, "Challenge FAILED")
}

func TestHandlePassBluff(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	_, url, cleanup := setupTestServer(stubOracle{state: quantum.StateOne})
	defer cleanup()

	conn1, conn2, state1, _ := joinTwoPlayers(t, ctx, url)
	defer conn1.Close(websocket.StatusNormalClosure, "")
	defer conn2.Close(websocket.StatusNormalClosure, "")

	alice := sessionID(state1)

	play, trueState := buildPlay(state1, quantum.StateOne)
	play.DeclaredState = trueState
	sendMessage(t, ctx, conn1, "play_and_declare", play)
	readGameUpdate(t, ctx, conn1)
	readGameUpdate(t, ctx, conn2)

	sendMessage(t, ctx, conn2, "pass_bluff", nil)
	after1 := readGameUpdate(t, ctx, conn1)
	readGameUpdate(t, ctx, conn2)

	assert.Equal(1, scoreOf(after1, alice))
	assert.Nil(after1.ActiveDeclaration)
	assert.True(after1.YourTurn, "Turn should return to the declarer after a pass")
}

func TestHandleChallengeBluff_NoDeclaration(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	_, url, cleanup := setupTestServer(stubOracle{state: quantum.StateOne})
	defer cleanup()

	conn1, conn2, _, _ := joinTwoPlayers(t, ctx, url)
	defer conn1.Close(websocket.StatusNormalClosure, "")
	defer conn2.Close(websocket.StatusNormalClosure, "")

	sendMessage(t, ctx, conn2, "challenge_bluff", nil)
	assert.Contains(readError(t, ctx, conn2), "NO_DECLARATION")
}

// ============================================================================
// GAME OVER AND REMATCH TESTS
// ============================================================================

func TestGameOverAndRematch(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	srv, url, cleanup := setupTestServer(stubOracle{state: quantum.StateOne})
	defer cleanup()

	conn1, conn2, state1, _ := joinTwoPlayers(t, ctx, url)
	defer conn1.Close(websocket.StatusNormalClosure, "")
	defer conn2.Close(websocket.StatusNormalClosure, "")

	alice := sessionID(state1)

	// Put Alice one point from winning so a single pass ends the game.
	ar, err := srv.roomManager.RoomBySession(alice)
	assert.NoError(err)
	ar.Lock()
	for _, p := range ar.Room.Players {
		if p.ID == alice {
			p.Score = quantum.WinningScore - 1
		}
	}
	ar.Unlock()

	play, trueState := buildPlay(state1, quantum.StateOne)
	play.DeclaredState = trueState
	sendMessage(t, ctx, conn1, "play_and_declare", play)
	readGameUpdate(t, ctx, conn1)
	readGameUpdate(t, ctx, conn2)

	sendMessage(t, ctx, conn2, "pass_bluff", nil)
	over1 := readGameUpdate(t, ctx, conn1)
	readGameUpdate(t, ctx, conn2)

	assert.Equal(quantum.PhaseGameOver, over1.Phase)
	assert.Equal(quantum.WinningScore, scoreOf(over1, alice))
	assert.Contains(over1.LastMessage, "Game Over")

	// First rematch request only registers interest.
	sendMessage(t, ctx, conn1, "request_rematch", nil)
	pending1 := readGameUpdate(t, ctx, conn1)
	readGameUpdate(t, ctx, conn2)
	assert.Equal(quantum.PhaseGameOver, pending1.Phase)
	assert.Contains(pending1.RematchRequestedBy, alice)

	// Consensus resets the room in place.
	sendMessage(t, ctx, conn2, "request_rematch", nil)
	fresh1 := readGameUpdate(t, ctx, conn1)
	fresh2 := readGameUpdate(t, ctx, conn2)

	assert.Equal(quantum.PhaseInGame, fresh1.Phase)
	assert.Equal(0, scoreOf(fresh1, alice))
	assert.Empty(fresh1.RematchRequestedBy)
	assert.Len(fresh1.MyHand, 3)
	assert.True(fresh1.YourTurn)
	assert.False(fresh2.YourTurn)
	assert.Equal(over1.RoomID, fresh1.RoomID)
}

func TestHandleRequestRematch_BeforeGameOver(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	_, url, cleanup := setupTestServer(stubOracle{state: quantum.StateOne})
	defer cleanup()

	conn1, conn2, _, _ := joinTwoPlayers(t, ctx, url)
	defer conn1.Close(websocket.StatusNormalClosure, "")
	defer conn2.Close(websocket.StatusNormalClosure, "")

	sendMessage(t, ctx, conn1, "request_rematch", nil)
	assert.Contains(readError(t, ctx, conn1), "WRONG_PHASE")
}

// ============================================================================
// CONNECTION LIFECYCLE TESTS
// ============================================================================

func TestDisconnectDestroysRoomAndNotifiesOpponent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	srv, url, cleanup := setupTestServer(stubOracle{state: quantum.StateOne})
	defer cleanup()

	conn1, conn2, _, _ := joinTwoPlayers(t, ctx, url)
	defer conn2.Close(websocket.StatusNormalClosure, "")

	conn1.Close(websocket.StatusNormalClosure, "leaving")

	msg := readMessage(t, ctx, conn2)
	assert.Equal("opponent_left", msg.Type)

	// The room is unregistered before the survivor is notified.
	assert.Equal(0, srv.roomManager.RoomCount())
}

func TestHandlePing(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	_, url, cleanup := setupTestServer(stubOracle{state: quantum.StateOne})
	defer cleanup()

	conn, _, err := websocket.Dial(ctx, url, nil)
	assert.NoError(err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	sendMessage(t, ctx, conn, "ping", nil)
	assert.Equal("pong", readMessage(t, ctx, conn).Type)
}

func TestUnknownMessageType(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	_, url, cleanup := setupTestServer(stubOracle{state: quantum.StateOne})
	defer cleanup()

	conn, _, err := websocket.Dial(ctx, url, nil)
	assert.NoError(err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	sendMessage(t, ctx, conn, "teleport", nil)
	assert.Contains(readError(t, ctx, conn), "INVALID_MESSAGE_TYPE")
}

func TestInvalidJSON(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	_, url, cleanup := setupTestServer(stubOracle{state: quantum.StateOne})
	defer cleanup()

	conn, _, err := websocket.Dial(ctx, url, nil)
	assert.NoError(err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	err = conn.Write(ctx, websocket.MessageText, []byte("not json"))
	assert.NoError(err)
	assert.Contains(readError(t, ctx, conn), "Invalid JSON")
}

func TestWebSocketRateLimiting(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	s := &Server{
		cfg:               Config{AllowedOrigin: "*"},
		connectionManager: NewConnectionManager(),
		roomManager:       NewRoomManager(),
		rateLimiter:       NewRateLimiter(3, time.Second),
		health:            NewConnectionHealth(),
		oracle:            stubOracle{state: quantum.StateOne},
	}
	server := httptest.NewServer(http.HandlerFunc(s.websocketHandler))
	defer server.Close()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/websocket"

	conn, _, err := websocket.Dial(ctx, url, nil)
	assert.NoError(err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	for i := 0; i < 10; i++ {
		sendMessage(t, ctx, conn, "ping", nil)
	}

	rateLimited := false
	for i := 0; i < 10; i++ {
		msg := readMessage(t, ctx, conn)
		if msg.Type == "error" {
			var errMsg ErrorMessage
			json.Unmarshal(mustMarshal(msg.Payload), &errMsg)
			if strings.Contains(errMsg.Message, "RATE_LIMITED") {
				rateLimited = true
			}
		}
	}
	assert.True(rateLimited, "Flooding should trip the rate limiter")
}
