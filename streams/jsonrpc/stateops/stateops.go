package stateops

import (
	"encoding/json"
	"fmt"

	"github.com/defistate/defistate-dex-go/differ"
	"github.com/defistate/defistate-dex-go/engine"
	"github.com/defistate/defistate-dex-go/patcher"
	"github.com/defistate/defistate-dex-go/protocols/constantproduct"
	"github.com/defistate/defistate-dex-go/protocols/tokenregistry"
	"github.com/prometheus/client_golang/prometheus"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StateOps bundles the schema-aware operations on exchange state.
//
// The server uses the embedded StateDiffer to turn consecutive snapshots into diffs; a
// client uses the embedded StatePatcher and the decoders to rebuild state from the stream.
type StateOps struct {
	*differ.StateDiffer
	*patcher.StatePatcher
}

// typed adapts a slice differ to the untyped ProtocolDiffer signature. A missing old
// view diffs against an empty one.
func typed[T any, D any](fn func(old, new []T) D) differ.ProtocolDiffer {
	return func(old, new any) (any, error) {
		var prev []T
		if old != nil {
			p, ok := old.([]T)
			if !ok {
				return nil, fmt.Errorf("unexpected old view type %T", old)
			}
			prev = p
		}
		next, ok := new.([]T)
		if !ok {
			return nil, fmt.Errorf("unexpected new view type %T", new)
		}
		return fn(prev, next), nil
	}
}

func typedPatcher[T any, D any](fn func(prev []T, diff D) ([]T, error)) patcher.PatcherFunc {
	return func(prevState, diffData any) (any, error) {
		var prev []T
		if prevState != nil {
			p, ok := prevState.([]T)
			if !ok {
				return nil, fmt.Errorf("unexpected view type %T", prevState)
			}
			prev = p
		}
		diff, ok := diffData.(D)
		if !ok {
			return nil, fmt.Errorf("unexpected diff type %T", diffData)
		}
		return fn(prev, diff)
	}
}

func NewStateOps(
	logger Logger,
	prometheusRegistry prometheus.Registerer,
) (*StateOps, error) {
	protocolDiffers := map[engine.ProtocolSchema]differ.ProtocolDiffer{
		tokenregistry.Schema:   typed(tokenregistry.Differ),
		constantproduct.Schema: typed(constantproduct.Differ),
	}

	protocolPatchers := map[engine.ProtocolSchema]patcher.PatcherFunc{
		tokenregistry.Schema:   typedPatcher(tokenregistry.Patcher),
		constantproduct.Schema: typedPatcher(constantproduct.Patcher),
	}

	stateDiffer, err := differ.NewStateDiffer(&differ.StateDifferConfig{
		ProtocolDiffers: protocolDiffers,
		Logger:          logger,
		Registry:        prometheusRegistry,
	})
	if err != nil {
		return nil, err
	}

	statePatcher, err := patcher.NewStatePatcher(&patcher.StatePatcherConfig{
		Patchers: protocolPatchers,
	})
	if err != nil {
		return nil, err
	}

	return &StateOps{
		StateDiffer:  stateDiffer,
		StatePatcher: statePatcher,
	}, nil
}

// DecodeStateJSON decodes a protocol view carried in a full state message.
func (ops *StateOps) DecodeStateJSON(
	schema engine.ProtocolSchema,
	data json.RawMessage,
) (any, error) {
	switch schema {
	case tokenregistry.Schema:
		var typedData []tokenregistry.Token
		if err := json.Unmarshal(data, &typedData); err != nil {
			return nil, err
		}
		return typedData, nil
	case constantproduct.Schema:
		var typedData []constantproduct.Pool
		if err := json.Unmarshal(data, &typedData); err != nil {
			return nil, err
		}
		return typedData, nil
	default:
		return nil, fmt.Errorf("unknown schema %q", schema)
	}
}

// DecodeStateDiffJSON decodes a protocol diff carried in a diff message.
func (ops *StateOps) DecodeStateDiffJSON(
	schema engine.ProtocolSchema,
	data json.RawMessage,
) (any, error) {
	switch schema {
	case tokenregistry.Schema:
		var typedData tokenregistry.TokenSystemDiff
		if err := json.Unmarshal(data, &typedData); err != nil {
			return nil, err
		}
		return typedData, nil
	case constantproduct.Schema:
		var typedData constantproduct.PoolSystemDiff
		if err := json.Unmarshal(data, &typedData); err != nil {
			return nil, err
		}
		return typedData, nil
	default:
		return nil, fmt.Errorf("unknown schema %q", schema)
	}
}
