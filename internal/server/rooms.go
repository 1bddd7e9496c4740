package server

import (
	"errors"
	"sync"
	"time"

	"quantum-bluff-server/internal/quantum"
)

var ErrRoomNotFound = errors.New("ROOM_NOT_FOUND: No room for this session")
var ErrAlreadyInRoom = errors.New("ALREADY_IN_ROOM: Session is already in a room")

// ActiveRoom wraps a quantum.Room with the coordination state the registry
// needs: a per-room mutex serializing every transition, and the single-slot
// in-flight token guarding the asynchronous gate resolution window.
type ActiveRoom struct {
	mu        sync.Mutex
	Room      *quantum.Room
	resolving bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Lock serializes transitions on this room. Rooms never interact, so
// distinct rooms proceed in parallel.
func (ar *ActiveRoom) Lock()   { ar.mu.Lock() }
func (ar *ActiveRoom) Unlock() { ar.mu.Unlock() }

// BeginResolve claims the room's one in-flight gate resolution slot. It
// fails while another play is waiting on the oracle, so a second play can
// never interleave with the first. Caller must hold the room lock.
func (ar *ActiveRoom) BeginResolve() bool {
	if ar.resolving {
		return false
	}
	ar.resolving = true
	return true
}

// EndResolve releases the slot. Caller must hold the room lock.
func (ar *ActiveRoom) EndResolve() {
	ar.resolving = false
}

// RoomManager is the process-wide room registry. Alongside the room map it
// keeps a session-id to room-id index, maintained on join and leave, so
// routing an intent never scans all rooms.
type RoomManager struct {
	rooms        map[string]*ActiveRoom
	sessionRooms map[string]string
	usedCodes    map[string]bool
	mu           sync.RWMutex
}

func NewRoomManager() *RoomManager {
	return &RoomManager{
		rooms:        make(map[string]*ActiveRoom),
		sessionRooms: make(map[string]string),
		usedCodes:    make(map[string]bool),
	}
}

// JoinOrCreate pairs the session into any room still waiting on a second
// player, or creates a fresh room when none is open. Registry iteration
// order decides which waiting room wins; there is no fairness policy.
func (rm *RoomManager) JoinOrCreate(sessionID, displayName string) (*ActiveRoom, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if _, ok := rm.sessionRooms[sessionID]; ok {
		return nil, ErrAlreadyInRoom
	}

	for roomID, ar := range rm.rooms {
		ar.Lock()
		if len(ar.Room.Players) == 1 && ar.Room.Phase == quantum.PhaseWaiting {
			ar.Room.AddPlayer(sessionID, displayName)
			ar.UpdatedAt = time.Now()
			ar.Unlock()
			rm.sessionRooms[sessionID] = roomID
			return ar, nil
		}
		ar.Unlock()
	}

	roomID := GenerateRoomCode(rm.usedCodes)
	rm.usedCodes[roomID] = true

	now := time.Now()
	ar := &ActiveRoom{
		Room:      quantum.NewRoom(roomID, sessionID, displayName),
		CreatedAt: now,
		UpdatedAt: now,
	}
	rm.rooms[roomID] = ar
	rm.sessionRooms[sessionID] = roomID
	return ar, nil
}

// RoomBySession resolves the room an intent belongs to via the session
// index.
func (rm *RoomManager) RoomBySession(sessionID string) (*ActiveRoom, error) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	roomID, ok := rm.sessionRooms[sessionID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	ar, ok := rm.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return ar, nil
}

// RemoveBySession deletes the whole room a session belongs to and unindexes
// every player in it. Either player disconnecting ends the match; the
// surviving player's room is gone too. Returns the removed room so the
// caller can notify whoever is left.
func (rm *RoomManager) RemoveBySession(sessionID string) (*ActiveRoom, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	roomID, ok := rm.sessionRooms[sessionID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	ar := rm.rooms[roomID]
	delete(rm.rooms, roomID)

	if ar != nil {
		ar.Lock()
		for _, p := range ar.Room.Players {
			delete(rm.sessionRooms, p.ID)
		}
		ar.Unlock()
	} else {
		delete(rm.sessionRooms, sessionID)
	}

	if ar == nil {
		return nil, ErrRoomNotFound
	}
	return ar, nil
}

// RoomCount reports the number of live rooms, for the health endpoint.
func (rm *RoomManager) RoomCount() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.rooms)
}
