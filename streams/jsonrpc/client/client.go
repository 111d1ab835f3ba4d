package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	differ "github.com/defistate/defistate-dex-go/differ"
	"github.com/defistate/defistate-dex-go/engine"
	"github.com/defistate/defistate-dex-go/streams/jsonrpc/server"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second
)

// ErrSequenceGap is returned by ProcessMessage when a diff does not start at the last
// applied sequence. The stream is unusable past that point; the Client resubscribes to get
// a fresh full state.
var ErrSequenceGap = errors.New("state stream sequence gap")

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StatePatcherFunc applies diff to prev and returns the resulting state.
type StatePatcherFunc func(prev *engine.State, diff *differ.StateDiff) (*engine.State, error)

// DecoderFunc turns one protocol's raw data into its typed form, selected by schema.
type DecoderFunc func(schema engine.ProtocolSchema, data json.RawMessage) (any, error)

// Config holds the configuration for the client.
type Config struct {
	URL              string
	Logger           Logger
	BufferSize       uint
	StatePatcher     StatePatcherFunc
	StateDecoder     DecoderFunc
	StateDiffDecoder DecoderFunc
}

func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.StatePatcher == nil {
		return errors.New("config: StatePatcher is required")
	}
	if c.StateDecoder == nil || c.StateDiffDecoder == nil {
		return errors.New("config: StateDecoder and StateDiffDecoder are required")
	}
	return nil
}

// SubscriptionEvent is the envelope of a state stream notification, with the payload left
// undecoded until its type is known.
type SubscriptionEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  int64           `json:"sentAt"`
}

// StreamProcessor turns state stream notifications into a sequence of engine.States.
// It has no networking and is not safe for concurrent use.
type StreamProcessor struct {
	last        *engine.State
	patch       StatePatcherFunc
	decodeState DecoderFunc
	decodeDiff  DecoderFunc
	states      chan *engine.State
	logger      Logger
}

func NewStreamProcessor(
	logger Logger,
	bufferSize uint,
	statePatcher StatePatcherFunc,
	stateDecoder DecoderFunc,
	stateDiffDecoder DecoderFunc,
) *StreamProcessor {
	return &StreamProcessor{
		logger:      logger,
		states:      make(chan *engine.State, bufferSize),
		patch:       statePatcher,
		decodeState: stateDecoder,
		decodeDiff:  stateDiffDecoder,
	}
}

// State returns the channel each applied state is published on.
func (sp *StreamProcessor) State() <-chan *engine.State {
	return sp.states
}

// LastState returns the most recently applied state, or nil before the first full state.
func (sp *StreamProcessor) LastState() *engine.State {
	return sp.last
}

// Reset forgets the last state so the next message must be a full state.
func (sp *StreamProcessor) Reset() {
	sp.last = nil
}

// ProcessMessage applies one notification. A diff that is older than the last state is
// ignored; one that skips ahead returns ErrSequenceGap.
func (sp *StreamProcessor) ProcessMessage(raw json.RawMessage) error {
	received := time.Now()
	var msg SubscriptionEvent
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal subscription event: %w", err)
	}

	var (
		next *engine.State
		err  error
	)
	switch msg.Type {
	case server.StreamEventFull:
		next, err = sp.fullState(msg.Payload)
	case server.StreamEventDiff:
		next, err = sp.applyDiff(msg.Payload)
	default:
		return fmt.Errorf("unknown stream event type %q", msg.Type)
	}
	if err != nil || next == nil {
		return err
	}

	sp.last = next
	sp.logger.Debug("state applied",
		"type", msg.Type,
		"sequence", next.Sequence,
		"protocols", len(next.Protocols),
		"errors", next.HasErrors(),
		"transport_ms", received.Sub(time.Unix(0, msg.SentAt)).Milliseconds(),
		"apply_ms", time.Since(received).Milliseconds(),
	)
	sp.states <- next
	return nil
}

func (sp *StreamProcessor) fullState(payload json.RawMessage) (*engine.State, error) {
	var wire clientState
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, fmt.Errorf("failed to unmarshal full state payload: %w", err)
	}

	state := &engine.State{
		Exchange:  wire.Exchange,
		Sequence:  wire.Sequence,
		Timestamp: wire.Timestamp,
		Protocols: make(map[engine.ProtocolID]engine.ProtocolState, len(wire.Protocols)),
	}
	for id, p := range wire.Protocols {
		data, err := decodeProtocol(sp.decodeState, p)
		if err != nil {
			return nil, fmt.Errorf("failed to decode state for protocol %s: %w", id, err)
		}
		state.Protocols[id] = engine.ProtocolState{Meta: p.Meta, Schema: p.Schema, Data: data, Error: p.Error}
	}
	return state, nil
}

func (sp *StreamProcessor) applyDiff(payload json.RawMessage) (*engine.State, error) {
	var wire clientStateDiff
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, fmt.Errorf("failed to unmarshal diff payload: %w", err)
	}
	if sp.last == nil {
		return nil, fmt.Errorf("received diff before full state; from_sequence: %d, to_sequence: %d", wire.FromSequence, wire.ToSequence)
	}

	switch {
	case wire.ToSequence <= sp.last.Sequence:
		sp.logger.Debug("ignoring stale diff", "last_sequence", sp.last.Sequence, "to_sequence", wire.ToSequence)
		return nil, nil
	case wire.FromSequence != sp.last.Sequence:
		return nil, fmt.Errorf("%w: have %d, diff starts at %d", ErrSequenceGap, sp.last.Sequence, wire.FromSequence)
	}

	diff := &differ.StateDiff{
		FromSequence: wire.FromSequence,
		ToSequence:   wire.ToSequence,
		Timestamp:    wire.Timestamp,
		Protocols:    make(map[engine.ProtocolID]differ.ProtocolDiff, len(wire.Protocols)),
	}
	for id, p := range wire.Protocols {
		data, err := decodeProtocol(sp.decodeDiff, p)
		if err != nil {
			return nil, fmt.Errorf("failed to decode diff data for protocol %s: %w", id, err)
		}
		diff.Protocols[id] = differ.ProtocolDiff{Meta: p.Meta, Schema: p.Schema, Data: data, Error: p.Error}
	}

	next, err := sp.patch(sp.last, diff)
	if err != nil {
		return nil, fmt.Errorf("failed to patch state: %w", err)
	}
	next.Timestamp = diff.Timestamp
	return next, nil
}

// decodeProtocol skips protocols that carry an error instead of data.
func decodeProtocol(decode DecoderFunc, p clientProtocolState) (any, error) {
	if len(p.Data) == 0 || string(p.Data) == "null" {
		return nil, nil
	}
	return decode(p.Schema, p.Data)
}

// Client keeps a StreamProcessor fed from the server's state stream, reconnecting with
// exponential backoff whenever the connection or the sequence breaks.
type Client struct {
	processor *StreamProcessor
	errCh     chan error
	logger    Logger
}

// NewClient starts streaming in the background until ctx is cancelled.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	c := &Client{
		processor: NewStreamProcessor(cfg.Logger, cfg.BufferSize, cfg.StatePatcher, cfg.StateDecoder, cfg.StateDiffDecoder),
		errCh:     make(chan error, 1),
		logger:    cfg.Logger,
	}
	go c.run(ctx, cfg.URL)
	return c, nil
}

func (c *Client) State() <-chan *engine.State {
	return c.processor.State()
}

// Err is closed when the client stops.
func (c *Client) Err() <-chan error {
	return c.errCh
}

func (c *Client) run(ctx context.Context, url string) {
	defer close(c.errCh)

	delay := initialReconnectDelay
	for {
		subscribed, err := c.stream(ctx, url)
		if ctx.Err() != nil {
			c.logger.Info("state stream stopped", "url", url)
			return
		}
		if subscribed {
			delay = initialReconnectDelay
		}
		if errors.Is(err, ErrSequenceGap) {
			// the server is healthy; a new subscription starts with a full state
			c.logger.Warn("state stream out of sync, resubscribing", "error", err)
			continue
		}

		c.logger.Error("state stream failed, reconnecting", "url", url, "error", err, "delay", delay)
		if !sleepCtx(ctx, delay) {
			c.logger.Info("state stream stopped", "url", url)
			return
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

// stream runs one subscription until it ends and reports whether it got that far.
func (c *Client) stream(ctx context.Context, url string) (bool, error) {
	conn, err := rpc.DialContext(ctx, url)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	raw := make(chan json.RawMessage)
	sub, err := conn.Subscribe(ctx, server.DexNamespace, raw, server.StateStreamSubscriptionMethod)
	if err != nil {
		return false, fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	c.processor.Reset()
	c.logger.Info("subscribed to state stream", "url", url)
	for {
		select {
		case msg := <-raw:
			if err := c.processor.ProcessMessage(msg); err != nil {
				if errors.Is(err, ErrSequenceGap) {
					return true, err
				}
				c.logger.Error("dropping state stream message", "error", err)
			}
		case err := <-sub.Err():
			if err == nil {
				err = errors.New("subscription closed")
			}
			return true, err
		case <-ctx.Done():
			return true, ctx.Err()
		}
	}
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
