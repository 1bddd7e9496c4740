package server

// ============================================================================
// ERROR RESPONSES
// ============================================================================
type ErrorMessage struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ============================================================================
// JOIN GAME (join_game)
// ============================================================================
type JoinGameRequest struct {
	DisplayName string `json:"displayName"`
}

// ============================================================================
// PLAY AND DECLARE (play_and_declare)
// ============================================================================
type PlayAndDeclareRequest struct {
	GateCardID     string `json:"gateCardId"`
	GateType       string `json:"gateType"`
	QubitID        string `json:"qubitId"`
	ControlQubitID string `json:"controlQubitId,omitempty"`
	DeclaredState  string `json:"declaredState"`
}

// challenge_bluff, pass_bluff and request_rematch carry no payload; the
// session id identifies the actor.

// ============================================================================
// OPPONENT LEFT (opponent_left broadcast)
// ============================================================================
type OpponentLeftNotification struct {
	Message string `json:"message"`
}

// ============================================================================
// HEALTH (/health)
// ============================================================================
type HealthResponse struct {
	Status  string `json:"status"`
	Rooms   int    `json:"rooms"`
	History string `json:"history"`
}
