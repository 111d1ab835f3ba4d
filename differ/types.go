package differ

import "github.com/defistate/defistate-dex-go/engine"

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type ProtocolDiff struct {
	Meta engine.ProtocolMeta `json:"meta"`

	// Schema is the decode contract for Data.
	// Examples:
	// "defistate/constantproduct/pool@v1"
	// "defistate/tokenregistry/token@v1"
	Schema engine.ProtocolSchema `json:"schema"`

	// Data is the protocol diff, shaped by Schema.
	Data any `json:"data,omitempty"`

	// Error is populated if this protocol failed to produce a view.
	Error string `json:"error,omitempty"`
}

// StateDiff summarizes the changes between two states, FromSequence to ToSequence.
// Protocols whose data did not change are omitted.
type StateDiff struct {
	Timestamp    uint64                             `json:"timestamp"`
	FromSequence uint64                             `json:"fromSequence"`
	ToSequence   uint64                             `json:"toSequence"`
	Protocols    map[engine.ProtocolID]ProtocolDiff `json:"protocols"`
}

// IsEmpty reports whether the diff carries no protocol changes.
func (d *StateDiff) IsEmpty() bool {
	return len(d.Protocols) == 0
}

// emptier is implemented by protocol diffs that can report having no changes.
type emptier interface {
	IsEmpty() bool
}
