package app

import (
	"sync"

	"classquiz-service/internal/domain"
)

// RoomRegistry is process-wide membership bookkeeping for live sessions.
// It is ephemeral: state is rebuilt from empty when the process restarts,
// which Join tolerates by being fully idempotent.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

type room struct {
	order   []string
	members map[string]*domain.Participant
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{rooms: make(map[string]*room)}
}

// Join adds a participant or, if the identity is already present, marks it
// online again without duplicating the record. A reconnect therefore keeps
// the participant's original position. Returns the full membership list.
func (r *RoomRegistry) Join(sessionID string, p domain.Participant) []domain.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[sessionID]
	if !ok {
		rm = &room{members: make(map[string]*domain.Participant)}
		r.rooms[sessionID] = rm
	}

	if existing, ok := rm.members[p.ID]; ok {
		existing.Online = true
		existing.Role = p.Role
		if p.Username != "" {
			existing.Username = p.Username
		}
	} else {
		cp := p
		cp.Online = true
		rm.members[p.ID] = &cp
		rm.order = append(rm.order, p.ID)
	}
	return rm.listLocked()
}

// MarkOffline flags a participant as disconnected without removing the
// record. Reports whether anything changed.
func (r *RoomRegistry) MarkOffline(sessionID, participantID string) ([]domain.Participant, bool) {
	return r.setOnline(sessionID, participantID, false)
}

// MarkOnline is the reconnect counterpart of MarkOffline.
func (r *RoomRegistry) MarkOnline(sessionID, participantID string) ([]domain.Participant, bool) {
	return r.setOnline(sessionID, participantID, true)
}

func (r *RoomRegistry) setOnline(sessionID, participantID string, online bool) ([]domain.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[sessionID]
	if !ok {
		return nil, false
	}
	p, ok := rm.members[participantID]
	if !ok || p.Online == online {
		return rm.listLocked(), false
	}
	p.Online = online
	return rm.listLocked(), true
}

// List returns a snapshot of the membership in insertion order.
func (r *RoomRegistry) List(sessionID string) []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[sessionID]
	if !ok {
		return nil
	}
	return rm.listLocked()
}

// Drop discards the membership for a finished session.
func (r *RoomRegistry) Drop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, sessionID)
}

func (rm *room) listLocked() []domain.Participant {
	out := make([]domain.Participant, 0, len(rm.order))
	for _, id := range rm.order {
		out = append(out, *rm.members[id])
	}
	return out
}
