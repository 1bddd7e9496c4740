package quantum

import (
	"math/rand"

	"github.com/google/uuid"
)

// Basis-state labels as they appear on the wire and on face-up cards.
const (
	StateZero  = "|0>"
	StateOne   = "|1>"
	StatePlus  = "|+>"
	StateMinus = "|->"
)

type GateType string

const (
	GateIdentity      GateType = "I"
	GateBitFlip       GateType = "X"
	GatePhaseFlip     GateType = "Z"
	GateHadamard      GateType = "H"
	GateControlledNot GateType = "CNOT"
)

func (g GateType) Valid() bool {
	switch g {
	case GateIdentity, GateBitFlip, GatePhaseFlip, GateHadamard, GateControlledNot:
		return true
	}
	return false
}

// Qubit is a card in a player's hand. State is the true state, known only to
// the owner and the server; an empty State means the qubit has never been
// revealed or acted on.
type Qubit struct {
	ID       string `json:"id"`
	FaceDown bool   `json:"isFaceDown"`
	State    string `json:"state,omitempty"`
}

// GateCard is single-use: consumed when played, replaced from the gate deck.
type GateCard struct {
	ID   string   `json:"id"`
	Type GateType `json:"type"`
}

const (
	qubitDeckSize = 20
	QubitHandSize = 3
	GateHandSize  = 3
)

// gateDeckComposition is the full gate multiset a fresh deck starts from.
var gateDeckComposition = map[GateType]int{
	GateHadamard:      4,
	GateBitFlip:       4,
	GatePhaseFlip:     4,
	GateIdentity:      2,
	GateControlledNot: 4,
}

// newCardID mints an id unique for the lifetime of the process. Ids are
// assigned at deal time, never at template time, so no two deals ever share
// an id, rematches included.
func newCardID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

// QubitDeck holds undealt qubit templates. Templates carry no id; Deal mints
// one per card handed out.
type QubitDeck struct {
	cards []Qubit
}

func NewQubitDeck() *QubitDeck {
	cards := make([]Qubit, qubitDeckSize)
	for i := range cards {
		cards[i] = Qubit{FaceDown: true}
	}
	d := &QubitDeck{cards: cards}
	d.Shuffle()
	return d
}

func (d *QubitDeck) Count() int {
	return len(d.cards)
}

func (d *QubitDeck) Shuffle() {
	rand.Shuffle(len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
}

// Deal removes and returns the first n cards. When fewer than n remain it
// returns whatever is left, possibly nothing; exhaustion is not an error.
func (d *QubitDeck) Deal(n int) []Qubit {
	if n > len(d.cards) {
		n = len(d.cards)
	}
	dealt := make([]Qubit, n)
	copy(dealt, d.cards[:n])
	d.cards = d.cards[n:]
	for i := range dealt {
		dealt[i].ID = newCardID("q")
	}
	return dealt
}

// GateDeck holds undealt gate templates.
type GateDeck struct {
	types []GateType
}

func NewGateDeck() *GateDeck {
	var types []GateType
	for gate, count := range gateDeckComposition {
		for range count {
			types = append(types, gate)
		}
	}
	d := &GateDeck{types: types}
	d.Shuffle()
	return d
}

func (d *GateDeck) Count() int {
	return len(d.types)
}

func (d *GateDeck) Shuffle() {
	rand.Shuffle(len(d.types), func(i, j int) {
		d.types[i], d.types[j] = d.types[j], d.types[i]
	})
}

// Deal removes and returns the first n cards, fewer if the deck runs dry.
func (d *GateDeck) Deal(n int) []GateCard {
	if n > len(d.types) {
		n = len(d.types)
	}
	dealt := make([]GateCard, n)
	for i := range dealt {
		dealt[i] = GateCard{ID: newCardID("g"), Type: d.types[i]}
	}
	d.types = d.types[n:]
	return dealt
}
