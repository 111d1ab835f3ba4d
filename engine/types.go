package engine

import (
	"github.com/ethereum/go-ethereum/common"
)

type ProtocolName string
type ProtocolID string

// ProtocolSchema defines the decode contract for a protocol's data
type ProtocolSchema string

type ProtocolMeta struct {
	Name ProtocolName `json:"name"`           // human label
	Tags []string     `json:"tags,omitempty"` // "dex", "tokens", etc.
}

type ProtocolState struct {
	Meta ProtocolMeta `json:"meta"`

	// Schema is the decode contract for Data.
	// Example:
	// "defistate/constantproduct/pool@v1"
	Schema ProtocolSchema `json:"schema"`

	// Data is the protocol view, shaped by Schema.
	Data any `json:"data,omitempty"`

	// Error is populated if this protocol could not produce a view.
	Error string `json:"error,omitempty"`
}

// State is the main data structure broadcast to subscribers.
// Sequence is the exchange's operation counter at the time the snapshot was taken;
// every committed mutation advances it by one.
type State struct {
	Exchange  common.Address               `json:"exchange"`
	Sequence  uint64                       `json:"sequence"`
	Timestamp uint64                       `json:"timestamp"`
	Protocols map[ProtocolID]ProtocolState `json:"protocols"`
}

func (state *State) HasErrors() bool {
	for _, pr := range state.Protocols {
		if pr.Error != "" {
			return true
		}
	}
	return false
}
