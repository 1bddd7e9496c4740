package quantum

// ClientState is the game_update payload, customized per recipient. The
// viewer's own hand travels verbatim; an opponent's face-down cards are
// stripped down to id and orientation so a true state never leaks.
type ClientState struct {
	RoomID             string         `json:"roomId"`
	Phase              Phase          `json:"gameState"`
	Players            []PublicPlayer `json:"players"`
	MyHand             []Qubit        `json:"myHand"`
	GateCards          []GateCard     `json:"gateCards"`
	TargetState        string         `json:"targetState"`
	CurrentTurn        string         `json:"currentTurn"`
	YourTurn           bool           `json:"yourTurn"`
	ActiveDeclaration  *Declaration   `json:"activeDeclaration"`
	LastMessage        string         `json:"lastMessage"`
	LastMove           *Move          `json:"lastMove"`
	RematchRequestedBy []string       `json:"rematchRequestedBy"`
}

type PublicPlayer struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Score         int     `json:"score"`
	Hand          []Qubit `json:"hand"`
	GateCardCount int     `json:"gateCardCount"`
	IsYou         bool    `json:"isYou"`
}

// GetClientState builds the snapshot one player is allowed to see.
func (r *Room) GetClientState(viewerID string) ClientState {
	state := ClientState{
		RoomID:             r.ID,
		Phase:              r.Phase,
		TargetState:        r.TargetState,
		CurrentTurn:        r.CurrentTurn,
		YourTurn:           r.CurrentTurn == viewerID,
		ActiveDeclaration:  r.ActiveDeclaration,
		LastMessage:        r.LastMessage,
		LastMove:           r.LastMove,
		RematchRequestedBy: r.RematchRequestedBy,
	}

	for _, p := range r.Players {
		public := PublicPlayer{
			ID:            p.ID,
			Name:          p.Name,
			Score:         p.Score,
			GateCardCount: len(p.GateCards),
			IsYou:         p.ID == viewerID,
		}
		if p.ID == viewerID {
			public.Hand = p.Hand
			state.MyHand = p.Hand
			state.GateCards = p.GateCards
		} else {
			public.Hand = redactHand(p.Hand)
		}
		state.Players = append(state.Players, public)
	}
	return state
}

func redactHand(hand []Qubit) []Qubit {
	redacted := make([]Qubit, len(hand))
	for i, q := range hand {
		redacted[i] = Qubit{ID: q.ID, FaceDown: q.FaceDown}
		if !q.FaceDown {
			redacted[i].State = q.State
		}
	}
	return redacted
}
