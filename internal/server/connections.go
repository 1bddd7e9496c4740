package server

import (
	"sync"

	"github.com/coder/websocket"
)

// ConnectionManager maps session ids to live websocket connections. The
// session id doubles as the player id everywhere in the game core, so this
// is the only lookup a broadcast needs.
type ConnectionManager struct {
	connections map[string]*websocket.Conn
	mu          sync.RWMutex
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*websocket.Conn),
	}
}

func (cm *ConnectionManager) AddConnection(sessionID string, conn *websocket.Conn) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.connections[sessionID] = conn
}

func (cm *ConnectionManager) RemoveConnection(sessionID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.connections, sessionID)
}

func (cm *ConnectionManager) GetConnection(sessionID string) *websocket.Conn {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.connections[sessionID]
}

// SessionIDs snapshots every connected session, for sweep tasks.
func (cm *ConnectionManager) SessionIDs() []string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	ids := make([]string, 0, len(cm.connections))
	for id := range cm.connections {
		ids = append(ids, id)
	}
	return ids
}
