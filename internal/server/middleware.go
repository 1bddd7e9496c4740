package server

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// RateLimiter caps inbound message rate per connection with a sliding
// window, so one abusive client cannot starve the rest.
type RateLimiter struct {
	maxRequests int
	window      time.Duration
	requests    map[string][]time.Time
	mu          sync.Mutex
}

func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make(map[string][]time.Time),
	}
}

// Allow reports whether the connection may send another message right now.
func (r *RateLimiter) Allow(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.window)

	recent := r.requests[sessionID][:0]
	for _, ts := range r.requests[sessionID] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= r.maxRequests {
		r.requests[sessionID] = recent
		return false
	}

	r.requests[sessionID] = append(recent, now)
	return true
}

// RemoveConnection drops rate data for a closed connection.
func (r *RateLimiter) RemoveConnection(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.requests, sessionID)
}

// Cleanup evicts connections with no activity inside the window. Run
// periodically to keep the map bounded.
func (r *RateLimiter) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.window)
	for id, timestamps := range r.requests {
		active := false
		for _, ts := range timestamps {
			if ts.After(cutoff) {
				active = true
				break
			}
		}
		if !active {
			delete(r.requests, id)
		}
	}
}

// ConnectionHealth tracks last activity per connection so dead sockets can
// be swept.
type ConnectionHealth struct {
	lastActivity map[string]time.Time
	mu           sync.RWMutex
}

func NewConnectionHealth() *ConnectionHealth {
	return &ConnectionHealth{
		lastActivity: make(map[string]time.Time),
	}
}

// UpdateActivity should be called on every inbound message.
func (h *ConnectionHealth) UpdateActivity(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastActivity[sessionID] = time.Now()
}

// GetInactiveConnections returns sessions silent for longer than timeout.
func (h *ConnectionHealth) GetInactiveConnections(timeout time.Duration) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var inactive []string
	now := time.Now()
	for id, last := range h.lastActivity {
		if now.Sub(last) > timeout {
			inactive = append(inactive, id)
		}
	}
	return inactive
}

func (h *ConnectionHealth) RemoveConnection(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.lastActivity, sessionID)
}

var validMessageTypes = map[string]bool{
	"ping":             true,
	"join_game":        true,
	"play_and_declare": true,
	"challenge_bluff":  true,
	"pass_bluff":       true,
	"request_rematch":  true,
}

// ValidateMessageType rejects unknown intents with a clear error before any
// payload parsing happens.
func ValidateMessageType(msgType string) error {
	if !validMessageTypes[msgType] {
		return fmt.Errorf("INVALID_MESSAGE_TYPE: Unknown message type '%s'", msgType)
	}
	return nil
}

// ValidateDisplayName checks join_game name requirements.
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("NAME_INVALID: Display name cannot be empty")
	}
	if len(name) > 20 {
		return fmt.Errorf("NAME_INVALID: Display name too long (max 20 characters)")
	}
	return nil
}
