package server

import (
	"context"
	"time"

	"github.com/defistate/defistate-dex-go/dex"
	"github.com/defistate/defistate-dex-go/engine"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
)

// streamer pushes exchange state and events to RPC subscribers.
//
// Exchange events are delivered synchronously, so each subscription drains them on a
// dedicated goroutine that never touches the network. Slow subscribers fall behind on
// their own without stalling the exchange.
type streamer struct {
	exchange   Exchange
	differ     StateDiffer
	logger     Logger
	bufferSize int
}

// SubscribeStateStream sends the full state once, then one diff per batch of committed
// operations. Each diff's fromSequence equals the previous message's sequence.
func (api *DexAPI) SubscribeStateStream(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}
	rpcSub := notifier.CreateSubscription()
	events := make(chan dex.Event, api.streamer.bufferSize)
	sub := api.exchange.SubscribeEvents(events)
	go api.streamer.streamState(notifier, rpcSub, events, sub)
	return rpcSub, nil
}

// SubscribeEvents forwards every committed exchange event. A subscriber that falls more
// than the buffer size behind receives an EventSubscriptionDropped notice and nothing after
// it.
func (api *DexAPI) SubscribeEvents(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}
	rpcSub := notifier.CreateSubscription()
	// subscribed before returning so no event committed after the call is missed
	events := make(chan dex.Event, api.streamer.bufferSize)
	sub := api.exchange.SubscribeEvents(events)
	go api.streamer.streamEvents(notifier, rpcSub, events, sub)
	return rpcSub, nil
}

func (s *streamer) streamState(notifier *rpc.Notifier, rpcSub *rpc.Subscription, events <-chan dex.Event, sub event.Subscription) {
	defer sub.Unsubscribe()

	// dirty coalesces any number of events into one pending state refresh
	dirty := make(chan struct{}, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-events:
				select {
				case dirty <- struct{}{}:
				default:
				}
			case <-done:
				return
			}
		}
	}()

	last := s.exchange.State()
	if err := notifier.Notify(rpcSub.ID, StreamEvent{Type: StreamEventFull, Payload: last, SentAt: time.Now().UnixNano()}); err != nil {
		s.logger.Warn("state stream notify failed", "subscription", rpcSub.ID, "error", err)
		return
	}
	s.logger.Debug("state stream started", "subscription", rpcSub.ID, "sequence", last.Sequence)

	for {
		select {
		case <-dirty:
			next := s.exchange.State()
			if next.Sequence == last.Sequence {
				continue
			}
			msg := s.nextMessage(last, next)
			if err := notifier.Notify(rpcSub.ID, msg); err != nil {
				s.logger.Warn("state stream notify failed", "subscription", rpcSub.ID, "error", err)
				return
			}
			last = next
		case err := <-sub.Err():
			// nil when the exchange closes its subscriptions
			if err != nil {
				s.logger.Warn("state stream source failed", "subscription", rpcSub.ID, "error", err)
			}
			return
		case err := <-rpcSub.Err():
			s.logger.Debug("state stream closed", "subscription", rpcSub.ID, "error", err)
			return
		}
	}
}

// nextMessage diffs next against last, falling back to a full state if diffing fails.
func (s *streamer) nextMessage(last, next *engine.State) StreamEvent {
	diff, err := s.differ.Diff(last, next)
	if err != nil {
		s.logger.Error("state diff failed, sending full state", "from", last.Sequence, "to", next.Sequence, "error", err)
		return StreamEvent{Type: StreamEventFull, Payload: next, SentAt: time.Now().UnixNano()}
	}
	return StreamEvent{Type: StreamEventDiff, Payload: diff, SentAt: time.Now().UnixNano()}
}

func (s *streamer) streamEvents(notifier *rpc.Notifier, rpcSub *rpc.Subscription, events <-chan dex.Event, sub event.Subscription) {
	notify := func(v any) error { return notifier.Notify(rpcSub.ID, v) }
	s.forwardEvents(string(rpcSub.ID), notify, rpcSub.Err(), events, sub)
}

// forwardEvents relays events to notify until the subscription closes. When the subscriber
// falls behind, the queued events are delivered and a final EventSubscriptionDropped notice
// carrying the first missed sequence ends the stream.
func (s *streamer) forwardEvents(id string, notify func(any) error, closed <-chan error, events <-chan dex.Event, sub event.Subscription) {
	queue := make(chan dex.Event, s.bufferSize)
	done := make(chan struct{})
	defer close(done)

	// written before queue is closed, read after
	var (
		overflowed bool
		missed     uint64
	)
	go func() {
		defer close(queue)
		defer sub.Unsubscribe()
		for {
			select {
			case ev := <-events:
				select {
				case queue <- ev:
				default:
					overflowed, missed = true, ev.Sequence
					s.logger.Warn("event subscriber too slow, dropping", "subscription", id, "missed_sequence", ev.Sequence)
					return
				}
			case <-sub.Err():
				return
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-queue:
			if !ok {
				if overflowed {
					if err := notify(dex.Event{Type: EventSubscriptionDropped, Sequence: missed}); err != nil {
						s.logger.Warn("event drop notice failed", "subscription", id, "error", err)
					}
				}
				return
			}
			if err := notify(ev); err != nil {
				s.logger.Warn("event notify failed", "subscription", id, "error", err)
				return
			}
		case <-closed:
			return
		}
	}
}
