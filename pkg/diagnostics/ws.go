package diagnostics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cfoust/kbsync/pkg/engine"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog/log"
	"nhooyr.io/websocket"
)

type Op int

const (
	SnapshotOp Op = iota
	EventOp
)

type SnapshotMessage struct {
	Op       Op
	Enabled  bool
	Entities []engine.State
}

type EventMessage struct {
	Op    Op
	Event engine.Event
}

// Events buffered per client before it is considered too slow.
const CLIENT_EVENT_LIMIT = 256

func WriteTimeout(ctx context.Context, timeout time.Duration, c *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Write(ctx, websocket.MessageBinary, msg)
}

// Feed streams engine events to websocket clients as CBOR. Each client
// first receives a snapshot of every connected entity.
type Feed struct {
	engine *engine.Engine
}

func NewFeed(e *engine.Engine) *Feed {
	return &Feed{engine: e}
}

func (f *Feed) BuildSnapshot() ([]byte, error) {
	return cbor.Marshal(SnapshotMessage{
		Op:       SnapshotOp,
		Enabled:  f.engine.Enabled(),
		Entities: f.engine.States(),
	})
}

func (f *Feed) HandleClient(ctx context.Context, c *websocket.Conn, host string) error {
	logger := log.With().Str("host", host).Logger()
	logger.Info().Msg("diagnostics client joined")

	events := f.engine.Events.Subscribe(CLIENT_EVENT_LIMIT)
	defer events.Done()

	// We never expect messages from the client
	ctx = c.CloseRead(ctx)

	snapshot, err := f.BuildSnapshot()
	if err != nil {
		logger.Error().Err(err).Msg("could not build snapshot")
		return err
	}

	err = WriteTimeout(ctx, time.Second*5, c, snapshot)
	if err != nil {
		return err
	}

	for {
		select {
		case event := <-events.Recv():
			bytes, err := cbor.Marshal(EventMessage{
				Op:    EventOp,
				Event: event,
			})
			if err != nil {
				logger.Error().Err(err).Msg("failed to encode event")
				continue
			}

			err = WriteTimeout(ctx, time.Second*5, c, bytes)
			if err != nil {
				return err
			}
		case <-ctx.Done():
			if dropped := events.Dropped(); dropped > 0 {
				logger.Warn().Int("dropped", dropped).Msg("client missed events")
			}
			logger.Info().Msg("diagnostics client left")
			return ctx.Err()
		}
	}
}

func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})

	if err != nil {
		log.Error().Err(err).Msg("error accepting client connection")
		return
	}

	defer c.Close(websocket.StatusInternalError, "operational fault during relay")

	hostname := r.RemoteAddr

	original, ok := r.Header["X-Forwarded-For"]
	if ok {
		hostname = original[0]
	}

	err = f.HandleClient(r.Context(), c, hostname)
	if errors.Is(err, context.Canceled) {
		return
	}
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
		websocket.CloseStatus(err) == websocket.StatusGoingAway {
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("diagnostics client failed")
		return
	}
}
