package room

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/courtside/internal/engine"
)

var ErrClosed = errors.New("room closed")

// Subscriber is one connection receiving the room's messages.
type Subscriber interface {
	ID() string
	// Send must not block. Returning false means the subscriber cannot keep
	// up and is removed from the room.
	Send(Message) bool
	// Drop is called once, from the room goroutine, after a failed Send.
	// It must not block either.
	Drop()
}

// Message is what a room delivers to its subscribers.
type Message interface{ isRoomMessage() }

// Joined carries the full snapshot and only goes to the joining subscriber.
type Joined struct {
	Snapshot Snapshot
}

// PeerJoined tells existing subscribers that someone else joined.
type PeerJoined struct {
	UserID string
}

// Delta is a successfully applied mutation, sent to every subscriber.
type Delta struct {
	Event engine.Event
}

func (Joined) isRoomMessage()     {}
func (PeerJoined) isRoomMessage() {}
func (Delta) isRoomMessage()      {}

type Snapshot struct {
	Key       string         `json:"key"`
	Courts    []engine.Court `json:"courts"`
	CreatedAt time.Time      `json:"createdAt"`
}

type View struct {
	Snapshot
	LastActivity time.Time
	NumClients   int
}

type msg interface{ isMsg() }

type join struct {
	sub   Subscriber
	reply chan struct{}
}

type leave struct {
	id    string
	reply chan struct{}
}

type fromClient struct {
	origin string
	cmd    engine.Command
	reply  chan dispatchResult
}

type touch struct {
	reply chan struct{}
}

type getState struct {
	reply chan View
}

type expireIfIdle struct {
	now   time.Time
	idle  time.Duration
	reply chan bool
}

func (join) isMsg()         {}
func (leave) isMsg()        {}
func (fromClient) isMsg()   {}
func (touch) isMsg()        {}
func (getState) isMsg()     {}
func (expireIfIdle) isMsg() {}

type dispatchResult struct {
	evt engine.Event
	err error
}

// Room serializes every read and write of one room's courts, subscribers
// and activity clock on a single goroutine.
type Room struct {
	key       string
	createdAt time.Time
	inbox     chan msg
	done      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	log       *zap.Logger
	now       func() time.Time

	// owned by loop
	state        engine.State
	lastActivity time.Time
	clients      map[string]Subscriber
}

type Option func(*Room)

func WithLogger(l *zap.Logger) Option {
	return func(r *Room) { r.log = l }
}

// WithClock replaces time.Now for activity tracking and point timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Room) { r.now = now }
}

func New(parent context.Context, key string, initial engine.State, opts ...Option) *Room {
	ctx, cancel := context.WithCancel(parent)

	r := &Room{
		key:     key,
		inbox:   make(chan msg, 64),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		log:     zap.NewNop(),
		now:     time.Now,
		state:   initial,
		clients: make(map[string]Subscriber),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(zap.String("room", key))
	r.createdAt = r.now()
	r.lastActivity = r.createdAt

	go r.loop()
	return r
}

func (r *Room) Key() string { return r.key }

// Done is closed once the room stops serving requests.
func (r *Room) Done() <-chan struct{} { return r.done }

func (r *Room) loop() {
	defer close(r.done)
	defer clear(r.clients)

	for {
		select {
		case <-r.ctx.Done():
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case join:
				id := msg.sub.ID()
				_, rejoin := r.clients[id]
				r.clients[id] = msg.sub
				r.lastActivity = r.now()
				r.deliver(id, msg.sub, Joined{Snapshot: r.snapshot()})
				if !rejoin {
					for otherID, other := range r.clients {
						if otherID != id {
							r.deliver(otherID, other, PeerJoined{UserID: id})
						}
					}
				}
				r.log.Debug("client joined", zap.String("user", id), zap.Int("clients", len(r.clients)))
				msg.reply <- struct{}{}

			case leave:
				if _, ok := r.clients[msg.id]; ok {
					delete(r.clients, msg.id)
					r.log.Debug("client left", zap.String("user", msg.id), zap.Int("clients", len(r.clients)))
				}
				msg.reply <- struct{}{}

			case fromClient:
				now := r.now()
				evt, next, err := engine.Apply(r.state, msg.cmd, now)
				if err != nil {
					r.log.Debug("command rejected", zap.String("user", msg.origin), zap.Error(err))
					msg.reply <- dispatchResult{err: err}
					break
				}
				r.state = next
				r.lastActivity = now
				r.broadcast(Delta{Event: evt})
				msg.reply <- dispatchResult{evt: evt}

			case touch:
				r.lastActivity = r.now()
				msg.reply <- struct{}{}

			case getState:
				msg.reply <- View{
					Snapshot:     r.snapshot(),
					LastActivity: r.lastActivity,
					NumClients:   len(r.clients),
				}

			case expireIfIdle:
				if msg.now.Sub(r.lastActivity) <= msg.idle {
					msg.reply <- false
					break
				}
				// Subscribers are detached without notice; later calls get ErrClosed.
				r.log.Info("room expired",
					zap.Duration("idle", msg.now.Sub(r.lastActivity)),
					zap.Int("clients", len(r.clients)))
				msg.reply <- true
				r.cancel()
				return
			}
		}
	}
}

func (r *Room) snapshot() Snapshot {
	return Snapshot{Key: r.key, Courts: r.state.Courts, CreatedAt: r.createdAt}
}

func (r *Room) broadcast(m Message) {
	for id, sub := range r.clients {
		r.deliver(id, sub, m)
	}
}

func (r *Room) deliver(id string, sub Subscriber, m Message) {
	if sub.Send(m) {
		return
	}
	// Client is slow/full - drop them.
	delete(r.clients, id)
	sub.Drop()
	r.log.Warn("dropped slow client", zap.String("user", id))
}

func (r *Room) send(ctx context.Context, m msg) error {
	select {
	case r.inbox <- m:
		return nil
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func await[T any](ctx context.Context, done <-chan struct{}, reply chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-done:
		// The loop may have replied right before exiting.
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, ErrClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Join subscribes sub, sends it the current snapshot and notifies the others.
func (r *Room) Join(ctx context.Context, sub Subscriber) error {
	reply := make(chan struct{}, 1)
	if err := r.send(ctx, join{sub: sub, reply: reply}); err != nil {
		return err
	}
	_, err := await(ctx, r.done, reply)
	return err
}

// Leave unsubscribes id. Once it returns the subscriber gets no more messages.
func (r *Room) Leave(ctx context.Context, id string) error {
	reply := make(chan struct{}, 1)
	if err := r.send(ctx, leave{id: id, reply: reply}); err != nil {
		return err
	}
	_, err := await(ctx, r.done, reply)
	return err
}

// Dispatch applies cmd and broadcasts the resulting event to every subscriber,
// origin included. Engine errors are returned and nothing is broadcast.
func (r *Room) Dispatch(ctx context.Context, origin string, cmd engine.Command) (engine.Event, error) {
	reply := make(chan dispatchResult, 1)
	if err := r.send(ctx, fromClient{origin: origin, cmd: cmd, reply: reply}); err != nil {
		return nil, err
	}
	res, err := await(ctx, r.done, reply)
	if err != nil {
		return nil, err
	}
	return res.evt, res.err
}

func (r *Room) Touch(ctx context.Context) error {
	reply := make(chan struct{}, 1)
	if err := r.send(ctx, touch{reply: reply}); err != nil {
		return err
	}
	_, err := await(ctx, r.done, reply)
	return err
}

func (r *Room) Snapshot(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := r.send(ctx, getState{reply: reply}); err != nil {
		return View{}, err
	}
	return await(ctx, r.done, reply)
}

// ExpireIfIdle stops the room if it has been idle for longer than idle at now.
// It runs between mutations, never during one. A room that is already
// closed reports true.
func (r *Room) ExpireIfIdle(ctx context.Context, now time.Time, idle time.Duration) (bool, error) {
	reply := make(chan bool, 1)
	err := r.send(ctx, expireIfIdle{now: now, idle: idle, reply: reply})
	if errors.Is(err, ErrClosed) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	expired, err := await(ctx, r.done, reply)
	if errors.Is(err, ErrClosed) {
		return true, nil
	}
	return expired, err
}

// Close stops the room and waits for its goroutine to exit.
func (r *Room) Close() {
	r.cancel()
	<-r.done
}
