package patcher

import (
	"errors"
	"fmt"

	"github.com/defistate/defistate-dex-go/differ"
	"github.com/defistate/defistate-dex-go/engine"
)

// PatcherFunc applies a diff to a previous protocol view to produce a new one.
//
// Implementations must not mutate prevState. prevState is nil when the protocol is new.
type PatcherFunc func(prevState any, diffData any) (newState any, err error)

type StatePatcherConfig struct {
	// Patchers maps a schema to the function that applies its diffs.
	Patchers map[engine.ProtocolSchema]PatcherFunc
}

func (c *StatePatcherConfig) validate() error {
	for _, patcher := range c.Patchers {
		if patcher == nil {
			return errors.New("patcher cannot be nil")
		}
	}
	return nil
}

// StatePatcher rebuilds exchange states from a base state and a stream of diffs.
type StatePatcher struct {
	patchers map[engine.ProtocolSchema]PatcherFunc
}

// NewStatePatcher constructs a new patcher from a configuration.
func NewStatePatcher(cfg *StatePatcherConfig) (*StatePatcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	patchers := make(map[engine.ProtocolSchema]PatcherFunc, len(cfg.Patchers))
	for k, v := range cfg.Patchers {
		patchers[k] = v
	}

	return &StatePatcher{
		patchers: patchers,
	}, nil
}

// Patch creates a new State by applying diff to oldState.
// Protocols the diff does not mention are shared with oldState by reference.
func (p *StatePatcher) Patch(oldState *engine.State, diff *differ.StateDiff) (*engine.State, error) {
	if oldState.Sequence != diff.FromSequence {
		return nil, fmt.Errorf("patcher: mismatch fromSequence (state=%d, diff=%d)", oldState.Sequence, diff.FromSequence)
	}
	if diff.ToSequence < diff.FromSequence {
		return nil, fmt.Errorf("patcher: diff goes backwards (%d -> %d)", diff.FromSequence, diff.ToSequence)
	}

	newProtocols := make(map[engine.ProtocolID]engine.ProtocolState, len(oldState.Protocols))
	for k, v := range oldState.Protocols {
		newProtocols[k] = v
	}

	for protocolID, protocolDiff := range diff.Protocols {
		patcherFunc, ok := p.patchers[protocolDiff.Schema]
		if !ok {
			return nil, fmt.Errorf("patcher: no patcher registered for schema %q (protocol=%s)", protocolDiff.Schema, protocolID)
		}

		var oldData any
		if oldResult, exists := oldState.Protocols[protocolID]; exists {
			if oldResult.Schema != protocolDiff.Schema {
				return nil, fmt.Errorf("patcher: schema mismatch for protocol %s (old=%s, diff=%s)", protocolID, oldResult.Schema, protocolDiff.Schema)
			}
			oldData = oldResult.Data
		}

		newData, err := patcherFunc(oldData, protocolDiff.Data)
		if err != nil {
			return nil, fmt.Errorf("patcher: failed to patch protocol %s: %w", protocolID, err)
		}

		newProtocols[protocolID] = engine.ProtocolState{
			Meta:   protocolDiff.Meta,
			Schema: protocolDiff.Schema,
			Data:   newData,
			Error:  protocolDiff.Error,
		}
	}

	return &engine.State{
		Exchange:  oldState.Exchange,
		Sequence:  diff.ToSequence,
		Timestamp: diff.Timestamp,
		Protocols: newProtocols,
	}, nil
}
