package differ

import (
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-dex-go/engine"
	"github.com/prometheus/client_golang/prometheus"
)

// ProtocolDiffer computes the diff between two views of one protocol. old is nil when
// the protocol first appears in new.
type ProtocolDiffer func(old, new any) (diff any, err error)

// StateDifferConfig holds all the individual differ functions and dependencies.
type StateDifferConfig struct {
	// One differ per schema (data contract), not per protocol identity.
	ProtocolDiffers map[engine.ProtocolSchema]ProtocolDiffer
	Registry        prometheus.Registerer
	Logger          Logger
}

// validate checks if the configuration is valid, ensuring required dependencies are present.
func (c *StateDifferConfig) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	for schema, differ := range c.ProtocolDiffers {
		if differ == nil {
			return fmt.Errorf("config: differ for schema %q is nil", schema)
		}
	}
	return nil
}

// StateDiffer computes StateDiffs between exchange state snapshots.
type StateDiffer struct {
	metrics         *Metrics
	logger          Logger
	protocolDiffers map[engine.ProtocolSchema]ProtocolDiffer
}

// NewStateDiffer constructs a new differ from a configuration, returning an error if the config is invalid.
func NewStateDiffer(cfg *StateDifferConfig) (*StateDiffer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	protocolDiffers := make(map[engine.ProtocolSchema]ProtocolDiffer, len(cfg.ProtocolDiffers))
	for schema, protocolDiffer := range cfg.ProtocolDiffers {
		protocolDiffers[schema] = protocolDiffer
	}

	return &StateDiffer{
		metrics:         NewMetrics(cfg.Registry),
		logger:          cfg.Logger,
		protocolDiffers: protocolDiffers,
	}, nil
}

// Diff computes the changes that turn old into new. Both states must be error free and
// new must not be older than old.
func (d *StateDiffer) Diff(old, new *engine.State) (*StateDiff, error) {
	totalTimer := prometheus.NewTimer(d.metrics.diffDuration.WithLabelValues())
	defer totalTimer.ObserveDuration()

	if old.HasErrors() || new.HasErrors() {
		return nil, errors.New("differ: cannot diff a state with protocol errors")
	}
	if old.Exchange != new.Exchange {
		return nil, fmt.Errorf("differ: states belong to different exchanges (%s, %s)", old.Exchange.Hex(), new.Exchange.Hex())
	}
	if new.Sequence < old.Sequence {
		return nil, fmt.Errorf("differ: new state at sequence %d predates old state at %d", new.Sequence, old.Sequence)
	}

	protocolDiffs := make(map[engine.ProtocolID]ProtocolDiff)
	for protocolID, newProtocolState := range new.Protocols {
		var oldData any
		if oldProtocolState, ok := old.Protocols[protocolID]; ok {
			if oldProtocolState.Schema != newProtocolState.Schema {
				return nil, fmt.Errorf("differ: schema of protocol %s changed from %q to %q", protocolID, oldProtocolState.Schema, newProtocolState.Schema)
			}
			oldData = oldProtocolState.Data
		}

		differFunc, exists := d.protocolDiffers[newProtocolState.Schema]
		if !exists {
			return nil, fmt.Errorf("differ: no differ registered for schema %q", newProtocolState.Schema)
		}

		timer := prometheus.NewTimer(d.metrics.protocolDuration.WithLabelValues(string(protocolID)))
		diffData, err := differFunc(oldData, newProtocolState.Data)
		timer.ObserveDuration()
		if err != nil {
			d.metrics.diffsTotal.WithLabelValues(string(protocolID), "error").Inc()
			d.logger.Error("protocol diff failed", "protocol", protocolID, "error", err)
			return nil, fmt.Errorf("differ: protocol %s: %w", protocolID, err)
		}
		d.metrics.diffsTotal.WithLabelValues(string(protocolID), "success").Inc()

		if e, ok := diffData.(emptier); ok && e.IsEmpty() {
			continue
		}

		protocolDiffs[protocolID] = ProtocolDiff{
			Meta:   newProtocolState.Meta,
			Schema: newProtocolState.Schema,
			Data:   diffData,
		}
	}

	return &StateDiff{
		Timestamp:    uint64(time.Now().UnixNano()),
		FromSequence: old.Sequence,
		ToSequence:   new.Sequence,
		Protocols:    protocolDiffs,
	}, nil
}
