package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/DoyleJ11/courtside/internal/engine"
	"github.com/DoyleJ11/courtside/internal/hub"
	"github.com/DoyleJ11/courtside/internal/room"
)

var (
	errNotJoined = errors.New("join a room first")
	errOtherRoom = errors.New("not joined to that room")
)

const (
	writeTimeout = 5 * time.Second
	leaveTimeout = 2 * time.Second
	pingInterval = 30 * time.Second
	maxReadBytes = 16 << 10
)

type Options struct {
	SendBuffer     int
	MessageRate    float64
	MessageBurst   int
	OriginPatterns []string
	// SurfaceCourtErrors sends room-error for unknown courts and blank names
	// instead of dropping the command silently.
	SurfaceCourtErrors bool
}

type Handler struct {
	hub  *hub.Hub
	log  *zap.Logger
	opts Options
}

func NewHandler(h *hub.Hub, log *zap.Logger, opts Options) *Handler {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.MessageRate <= 0 {
		opts.MessageRate = 20
	}
	if opts.MessageBurst <= 0 {
		opts.MessageBurst = 40
	}
	return &Handler{hub: h, log: log.Named("ws"), opts: opts}
}

// client is one websocket connection. It implements room.Subscriber.
type client struct {
	id     string
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger
}

func (c *client) ID() string { return c.id }

// Send is called from the room goroutine and never blocks.
func (c *client) Send(m room.Message) bool {
	payload, err := encodeRoomMessage(m)
	if err != nil {
		c.log.Error("encode room message", zap.Error(err))
		return true
	}
	return c.enqueue(payload)
}

// Drop disconnects a client that fell behind. It reconnects and re-joins
// to get a fresh snapshot.
func (c *client) Drop() {
	c.log.Warn("disconnecting slow client")
	c.cancel()
}

func (c *client) enqueue(payload []byte) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// conn is the per-connection state owned by the reader goroutine.
type conn struct {
	h       *Handler
	ws      *websocket.Conn
	c       *client
	limiter *rate.Limiter
	roomKey string
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.opts.OriginPatterns,
	})
	if err != nil {
		h.log.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer wsConn.Close(websocket.StatusNormalClosure, "bye")
	wsConn.SetReadLimit(maxReadBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	id := uuid.NewString()
	cn := &conn{
		h:  h,
		ws: wsConn,
		c: &client{
			id:     id,
			send:   make(chan []byte, h.opts.SendBuffer),
			ctx:    ctx,
			cancel: cancel,
			log:    h.log.With(zap.String("user", id)),
		},
		limiter: rate.NewLimiter(rate.Limit(h.opts.MessageRate), h.opts.MessageBurst),
	}
	cn.c.log.Debug("client connected", zap.String("remote", r.RemoteAddr))

	go cn.writeLoop(ctx)
	defer cn.leave()

	cn.readLoop(ctx)
}

func (cn *conn) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case payload := <-cn.c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := cn.ws.Write(wctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				cn.c.log.Debug("write failed", zap.Error(err))
				cn.c.cancel()
				return
			}

		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := cn.ws.Ping(pctx)
			cancel()
			if err != nil {
				cn.c.log.Debug("ping failed", zap.Error(err))
				cn.c.cancel()
				return
			}
		}
	}
}

func (cn *conn) readLoop(ctx context.Context) {
	for {
		_, data, err := cn.ws.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if ctx.Err() == nil {
					cn.c.log.Debug("read failed", zap.Error(err))
				}
			}
			return
		}

		if !cn.limiter.Allow() {
			cn.replyError("rate limit exceeded")
			continue
		}

		msg, err := decodeClientMessage(data)
		if err != nil {
			cn.replyError(err.Error())
			continue
		}

		if msg.Type == TypeJoinRoom {
			cn.join(ctx, msg.RoomKey)
			continue
		}
		cn.dispatch(ctx, msg)
	}
}

func (cn *conn) join(ctx context.Context, rawKey string) {
	key, err := engine.ParseKey(rawKey)
	if err != nil {
		cn.replyError(hub.ErrRoomNotFound.Error())
		return
	}
	if cn.roomKey != "" && cn.roomKey != key {
		cn.leave()
	}

	if _, err := cn.h.hub.Join(ctx, key, cn.c); err != nil {
		cn.c.log.Debug("join failed", zap.String("room", key), zap.Error(err))
		cn.replyError(err.Error())
		return
	}
	cn.roomKey = key
}

func (cn *conn) dispatch(ctx context.Context, msg ClientMessage) {
	key := cn.roomKey
	if key == "" {
		cn.replyError(errNotJoined.Error())
		return
	}
	// A connection only mutates the room it is subscribed to.
	if msg.RoomKey != "" {
		if k, err := engine.ParseKey(msg.RoomKey); err != nil || k != key {
			cn.replyError(errOtherRoom.Error())
			return
		}
	}

	_, err := cn.h.hub.Dispatch(ctx, key, cn.c.id, msg.Cmd)
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrCourtNotFound), errors.Is(err, engine.ErrInvalidName):
		cn.c.log.Info("command dropped",
			zap.String("room", key),
			zap.String("type", msg.Type),
			zap.Error(err))
		if cn.h.opts.SurfaceCourtErrors {
			cn.replyError(err.Error())
		}
	case errors.Is(err, context.Canceled):
	default:
		cn.replyError(err.Error())
	}
}

func (cn *conn) leave() {
	if cn.roomKey == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	if err := cn.h.hub.Leave(ctx, cn.roomKey, cn.c.id); err != nil {
		cn.c.log.Warn("leave failed", zap.String("room", cn.roomKey), zap.Error(err))
	}
	cn.roomKey = ""
}

// replyError goes to this connection only. It is dropped if the send
// buffer is full.
func (cn *conn) replyError(message string) {
	cn.c.enqueue(encodeRoomError(message))
}
