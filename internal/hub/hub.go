// Package hub is the process-wide session store: it maps room keys to live
// rooms and reclaims rooms that have gone idle.
package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/courtside/internal/engine"
	"github.com/DoyleJ11/courtside/internal/room"
)

var ErrRoomNotFound = errors.New("room not found")
var ErrDuplicateKey = errors.New("room key already in use")

// Hub only guards its key map; room content is serialized by each room.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*room.Room

	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger
	now    func() time.Time
}

type Option func(*Hub)

func WithLogger(l *zap.Logger) Option {
	return func(h *Hub) { h.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

func NewHub(parent context.Context, opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		rooms:  make(map[string]*room.Room),
		ctx:    ctx,
		cancel: cancel,
		log:    zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Create registers a new room. The key is normalized the same way Get
// normalizes it, so a room is always reachable under the key it was made with.
func (h *Hub) Create(rawKey string, initial engine.State) (*room.Room, error) {
	key, err := engine.ParseKey(rawKey)
	if err != nil {
		return nil, fmt.Errorf("create room %q: %w", rawKey, err)
	}
	if len(initial.Courts) == 0 {
		return nil, fmt.Errorf("create room %s: no courts", key)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[key]; ok {
		return nil, ErrDuplicateKey
	}
	rm := room.New(h.ctx, key, initial,
		room.WithLogger(h.log),
		room.WithClock(h.now))
	h.rooms[key] = rm

	h.log.Info("room created", zap.String("room", key), zap.Int("courts", len(initial.Courts)))
	return rm, nil
}

// Get resolves a client supplied key, in any case.
func (h *Hub) Get(key string) (*room.Room, error) {
	k, err := engine.ParseKey(key)
	if err != nil {
		return nil, ErrRoomNotFound
	}

	h.mu.RLock()
	rm, ok := h.rooms[k]
	h.mu.RUnlock()

	if !ok {
		return nil, ErrRoomNotFound
	}
	return rm, nil
}

func (h *Hub) Touch(ctx context.Context, key string) error {
	rm, err := h.Get(key)
	if err != nil {
		return err
	}
	return notFoundIfClosed(rm.Touch(ctx))
}

// Delete stops the room and forgets it. Unknown keys are ignored.
func (h *Hub) Delete(key string) {
	if k, err := engine.ParseKey(key); err == nil {
		key = k
	}

	h.mu.Lock()
	rm, ok := h.rooms[key]
	delete(h.rooms, key)
	h.mu.Unlock()

	if ok {
		rm.Close()
	}
}

// remove forgets key only if it still maps to rm.
func (h *Hub) remove(key string, rm *room.Room) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[key] != rm {
		return false
	}
	delete(h.rooms, key)
	return true
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) list() map[string]*room.Room {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]*room.Room, len(h.rooms))
	for k, rm := range h.rooms {
		out[k] = rm
	}
	return out
}

// Join resolves key and subscribes sub to the room.
func (h *Hub) Join(ctx context.Context, key string, sub room.Subscriber) (*room.Room, error) {
	rm, err := h.Get(key)
	if err != nil {
		return nil, err
	}
	if err := rm.Join(ctx, sub); err != nil {
		return nil, notFoundIfClosed(err)
	}
	return rm, nil
}

func (h *Hub) Dispatch(ctx context.Context, key, origin string, cmd engine.Command) (engine.Event, error) {
	rm, err := h.Get(key)
	if err != nil {
		return nil, err
	}
	evt, err := rm.Dispatch(ctx, origin, cmd)
	return evt, notFoundIfClosed(err)
}

// Leave unsubscribes id from key's room. A room that is already gone is fine.
func (h *Hub) Leave(ctx context.Context, key, id string) error {
	rm, err := h.Get(key)
	if errors.Is(err, ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := rm.Leave(ctx, id); err != nil && !errors.Is(err, room.ErrClosed) {
		return err
	}
	return nil
}

// Shutdown stops every room.
func (h *Hub) Shutdown() {
	h.cancel()

	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[string]*room.Room)
	h.mu.Unlock()

	for _, rm := range rooms {
		<-rm.Done()
	}
}

func notFoundIfClosed(err error) error {
	if errors.Is(err, room.ErrClosed) {
		return ErrRoomNotFound
	}
	return err
}
