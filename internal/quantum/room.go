package quantum

import "fmt"

// WinningScore ends the game the moment any player reaches it.
const WinningScore = 5

type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhaseInGame   Phase = "in-game"
	PhaseGameOver Phase = "game-over"
)

type Player struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Score     int        `json:"score"`
	Hand      []Qubit    `json:"hand"`
	GateCards []GateCard `json:"gateCards"`
}

// Declaration is a public, possibly false claim about a qubit's post-gate
// state. It exists exactly while a play is waiting to be challenged or
// passed on.
type Declaration struct {
	QubitID       string `json:"qubitId"`
	DeclaredState string `json:"declaredState"`
	PlayerID      string `json:"playerId"`
}

// Move records the public metadata of the last play. The declared state lives
// in the Declaration; the true state is never part of a Move.
type Move struct {
	PlayerID   string `json:"playerId"`
	GateCardID string `json:"gateCardId"`
	QubitID    string `json:"qubitId"`
}

// Room is one isolated two-player match and its full mutable state. Methods
// never lock: the caller serializes all access to a room.
type Room struct {
	ID                 string
	Players            []*Player
	TargetState        string
	CurrentTurn        string
	ActiveDeclaration  *Declaration
	LastMessage        string
	Phase              Phase
	QubitDeck          *QubitDeck
	GateDeck           *GateDeck
	RematchRequestedBy []string
	LastMove           *Move
}

// NewRoom creates a room with its first player dealt in. The room waits for
// a second player before any move is legal.
func NewRoom(id, playerID, playerName string) *Room {
	r := &Room{
		ID:          id,
		TargetState: "101",
		CurrentTurn: playerID,
		Phase:       PhaseWaiting,
		QubitDeck:   NewQubitDeck(),
		GateDeck:    NewGateDeck(),
		LastMessage: fmt.Sprintf("Welcome %s! Waiting for another player...", playerName),
	}
	r.Players = append(r.Players, r.dealIn(playerID, playerName))
	return r
}

// AddPlayer deals the second player from the room's already-shuffled decks
// and starts the game. The first player keeps the turn.
func (r *Room) AddPlayer(playerID, playerName string) *Player {
	p := r.dealIn(playerID, playerName)
	r.Players = append(r.Players, p)
	r.Phase = PhaseInGame
	r.LastMessage = fmt.Sprintf("%s has joined! It's %s's turn.", playerName, r.Players[0].Name)
	return p
}

// dealIn draws a fresh hand and gate set. The first qubit is dealt face up
// in state |0>, the game's fixed starter reveal.
func (r *Room) dealIn(playerID, playerName string) *Player {
	hand := r.QubitDeck.Deal(QubitHandSize)
	if len(hand) > 0 {
		hand[0].FaceDown = false
		hand[0].State = StateZero
	}
	return &Player{
		ID:        playerID,
		Name:      playerName,
		Hand:      hand,
		GateCards: r.GateDeck.Deal(GateHandSize),
	}
}

// ResetForRematch reshuffles both decks from the full template pools,
// re-deals every player and zeroes the scoreboard, all in place. Card ids
// are minted fresh, so nothing dealt before the rematch is ever reused.
func (r *Room) ResetForRematch() {
	r.QubitDeck = NewQubitDeck()
	r.GateDeck = NewGateDeck()

	for _, p := range r.Players {
		p.Score = 0
		p.Hand = r.QubitDeck.Deal(QubitHandSize)
		if len(p.Hand) > 0 {
			p.Hand[0].FaceDown = false
			p.Hand[0].State = StateZero
		}
		p.GateCards = r.GateDeck.Deal(GateHandSize)
	}

	r.Phase = PhaseInGame
	r.ActiveDeclaration = nil
	r.RematchRequestedBy = nil
	r.LastMove = nil
	r.CurrentTurn = r.Players[0].ID
	r.LastMessage = "Rematch started! Player 1's turn."
}

func (r *Room) player(id string) *Player {
	for _, p := range r.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Opponent returns the other player, or nil while the room is unpaired.
func (r *Room) Opponent(id string) *Player {
	for _, p := range r.Players {
		if p.ID != id {
			return p
		}
	}
	return nil
}

func (r *Room) qubit(p *Player, qubitID string) *Qubit {
	for i := range p.Hand {
		if p.Hand[i].ID == qubitID {
			return &p.Hand[i]
		}
	}
	return nil
}

// findQubit searches both hands, for CNOT controls which may sit in either.
func (r *Room) findQubit(qubitID string) *Qubit {
	for _, p := range r.Players {
		if q := r.qubit(p, qubitID); q != nil {
			return q
		}
	}
	return nil
}
