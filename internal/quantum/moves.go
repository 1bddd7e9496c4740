package quantum

import (
	"errors"
	"fmt"
)

// Guard violations. The coordinator reports these privately to the actor and
// mutates nothing; they are never broadcast and never fatal.
var (
	ErrWrongPhase         = errors.New("WRONG_PHASE: Action not allowed in this game phase")
	ErrNotYourTurn        = errors.New("NOT_YOUR_TURN: It is not your turn")
	ErrDeclarationPending = errors.New("DECLARATION_PENDING: Respond to the active declaration first")
	ErrNoDeclaration      = errors.New("NO_DECLARATION: There is no declaration to respond to")
	ErrGateCardNotHeld    = errors.New("GATE_CARD_NOT_HELD: You do not hold that gate card")
	ErrQubitNotHeld       = errors.New("QUBIT_NOT_HELD: Target qubit is not in your hand")
	ErrControlNotFound    = errors.New("CONTROL_NOT_FOUND: Control qubit not found in either hand")
	ErrControlRequired    = errors.New("CONTROL_REQUIRED: A controlled gate needs a control qubit")
	ErrInvalidGate        = errors.New("INVALID_GATE: Unknown gate type")
	ErrNotAPlayer         = errors.New("NOT_A_PLAYER: You are not part of this room")
)

// PlayRequest is a validated play_and_declare intent. DeclaredState is the
// claim the player broadcasts; nothing forces it to match what the gate
// actually produced.
type PlayRequest struct {
	GateCardID     string
	GateType       GateType
	QubitID        string
	ControlQubitID string
	DeclaredState  string
}

// StagedPlay captures everything gate resolution needs, read under the room
// guard before the oracle round trip.
type StagedPlay struct {
	PriorState   string
	Gate         GateType
	ControlState string
}

// StagePlay runs every PlayAndDeclare guard and snapshots the states the
// resolver needs. It mutates nothing; the caller resolves the gate and then
// commits with CommitPlay, which re-runs the same guards.
func (r *Room) StagePlay(playerID string, req PlayRequest) (StagedPlay, error) {
	if err := r.checkPlay(playerID, req); err != nil {
		return StagedPlay{}, err
	}

	p := r.player(playerID)
	target := r.qubit(p, req.QubitID)

	staged := StagedPlay{PriorState: target.State, Gate: req.GateType}
	if req.GateType == GateControlledNot {
		staged.ControlState = r.findQubit(req.ControlQubitID).State
	}
	return staged, nil
}

// CommitPlay applies a resolved play: overwrite the target's true state,
// consume and replace the gate card, publish the declaration, pass the turn
// to the opponent. The guards run again because the oracle round trip
// between stage and commit may have outlived them.
func (r *Room) CommitPlay(playerID string, req PlayRequest, newState string) error {
	if err := r.checkPlay(playerID, req); err != nil {
		return err
	}

	p := r.player(playerID)
	target := r.qubit(p, req.QubitID)
	target.State = newState

	for i, g := range p.GateCards {
		if g.ID == req.GateCardID {
			p.GateCards = append(p.GateCards[:i], p.GateCards[i+1:]...)
			break
		}
	}
	p.GateCards = append(p.GateCards, r.GateDeck.Deal(1)...)

	r.ActiveDeclaration = &Declaration{
		QubitID:       req.QubitID,
		DeclaredState: req.DeclaredState,
		PlayerID:      playerID,
	}
	r.LastMove = &Move{PlayerID: playerID, GateCardID: req.GateCardID, QubitID: req.QubitID}

	opponent := r.Opponent(playerID)
	r.CurrentTurn = opponent.ID
	r.LastMessage = fmt.Sprintf("%s declared state %s. It's %s's turn.", p.Name, req.DeclaredState, opponent.Name)
	return nil
}

func (r *Room) checkPlay(playerID string, req PlayRequest) error {
	if r.Phase != PhaseInGame {
		return ErrWrongPhase
	}
	if r.CurrentTurn != playerID {
		return ErrNotYourTurn
	}
	if r.ActiveDeclaration != nil {
		return ErrDeclarationPending
	}
	p := r.player(playerID)
	if p == nil {
		return ErrNotAPlayer
	}
	if !req.GateType.Valid() {
		return ErrInvalidGate
	}

	held := false
	for _, g := range p.GateCards {
		if g.ID == req.GateCardID {
			if g.Type != req.GateType {
				return ErrInvalidGate
			}
			held = true
			break
		}
	}
	if !held {
		return ErrGateCardNotHeld
	}

	if r.qubit(p, req.QubitID) == nil {
		return ErrQubitNotHeld
	}

	if req.GateType == GateControlledNot {
		if req.ControlQubitID == "" {
			return ErrControlRequired
		}
		if r.findQubit(req.ControlQubitID) == nil {
			return ErrControlNotFound
		}
	}
	return nil
}

// Challenge resolves an active declaration by comparing the claim against the
// target qubit's true state. The challenger takes the next turn either way.
func (r *Room) Challenge(playerID string) error {
	if err := r.checkResponse(playerID); err != nil {
		return err
	}

	decl := r.ActiveDeclaration
	declarer := r.player(decl.PlayerID)
	challenger := r.player(playerID)

	target := r.qubit(declarer, decl.QubitID)
	if target == nil {
		return ErrQubitNotHeld
	}

	if target.State == decl.DeclaredState {
		challenger.Score -= 1
		declarer.Score += 2
		r.LastMessage = fmt.Sprintf("Challenge FAILED! %s's declaration was correct.", declarer.Name)
	} else {
		challenger.Score += 2
		declarer.Score -= 1
		r.LastMessage = fmt.Sprintf("Challenge SUCCESSFUL! %s was bluffing. The true state was %s.", declarer.Name, target.State)
	}

	r.CurrentTurn = challenger.ID
	r.ActiveDeclaration = nil
	r.LastMove = nil
	r.LastMessage += fmt.Sprintf(" Now it's %s's turn.", challenger.Name)

	r.checkForWinner()
	return nil
}

// Pass lets a declaration stand: the declarer scores the unchallenged-move
// point and moves again.
func (r *Room) Pass(playerID string) error {
	if err := r.checkResponse(playerID); err != nil {
		return err
	}

	declarer := r.player(r.ActiveDeclaration.PlayerID)
	declarer.Score += 1

	r.CurrentTurn = declarer.ID
	r.ActiveDeclaration = nil
	r.LastMove = nil
	r.LastMessage = fmt.Sprintf("The opponent passed. %s gets 1 point and plays again.", declarer.Name)

	r.checkForWinner()
	return nil
}

func (r *Room) checkResponse(playerID string) error {
	if r.Phase != PhaseInGame {
		return ErrWrongPhase
	}
	if r.ActiveDeclaration == nil {
		return ErrNoDeclaration
	}
	if r.CurrentTurn != playerID {
		return ErrNotYourTurn
	}
	if r.player(playerID) == nil {
		return ErrNotAPlayer
	}
	return nil
}

// checkForWinner runs after every challenge or pass resolution, never after
// a bare play.
func (r *Room) checkForWinner() {
	for _, p := range r.Players {
		if p.Score >= WinningScore {
			r.Phase = PhaseGameOver
			r.LastMessage = fmt.Sprintf("Game Over! %s has won the game!", p.Name)
			return
		}
	}
}

// RequestRematch records the player's vote. Voting twice changes nothing.
// Once every player in the room has voted, the room resets in place and the
// game restarts.
func (r *Room) RequestRematch(playerID string) error {
	if r.Phase != PhaseGameOver {
		return ErrWrongPhase
	}
	if r.player(playerID) == nil {
		return ErrNotAPlayer
	}

	for _, id := range r.RematchRequestedBy {
		if id == playerID {
			return nil
		}
	}
	r.RematchRequestedBy = append(r.RematchRequestedBy, playerID)

	if len(r.RematchRequestedBy) == len(r.Players) {
		r.ResetForRematch()
	}
	return nil
}
