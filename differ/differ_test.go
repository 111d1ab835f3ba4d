package differ

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/defistate/defistate-dex-go/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type intDiff int

func (d intDiff) IsEmpty() bool { return d == 0 }

// subtractDiffer diffs integer views by subtraction.
func subtractDiffer(old, new any) (any, error) {
	prev := 0
	if old != nil {
		prev = old.(int)
	}
	next, ok := new.(int)
	if !ok {
		return nil, errors.New("not an int")
	}
	return intDiff(next - prev), nil
}

const intSchema = engine.ProtocolSchema("mock/int@v1")

func newTestDiffer(t *testing.T) (*StateDiffer, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	d, err := NewStateDiffer(&StateDifferConfig{
		ProtocolDiffers: map[engine.ProtocolSchema]ProtocolDiffer{intSchema: subtractDiffer},
		Registry:        reg,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return d, reg
}

func state(seq uint64, protocols map[engine.ProtocolID]engine.ProtocolState) *engine.State {
	return &engine.State{
		Exchange:  common.HexToAddress("0xee"),
		Sequence:  seq,
		Protocols: protocols,
	}
}

func TestStateDiffer(t *testing.T) {
	t.Run("changed, unchanged and new protocols", func(t *testing.T) {
		d, _ := newTestDiffer(t)
		old := state(3, map[engine.ProtocolID]engine.ProtocolState{
			"pools":  {Schema: intSchema, Data: 10},
			"tokens": {Schema: intSchema, Data: 7},
		})
		new := state(5, map[engine.ProtocolID]engine.ProtocolState{
			"pools":  {Schema: intSchema, Data: 12},
			"tokens": {Schema: intSchema, Data: 7},
			"fresh":  {Schema: intSchema, Data: 1},
		})

		diff, err := d.Diff(old, new)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), diff.FromSequence)
		assert.Equal(t, uint64(5), diff.ToSequence)
		assert.Equal(t, intDiff(2), diff.Protocols["pools"].Data)
		assert.Equal(t, intDiff(1), diff.Protocols["fresh"].Data)
		_, ok := diff.Protocols["tokens"]
		assert.False(t, ok, "unchanged protocols are omitted")
	})

	t.Run("identical states produce an empty diff", func(t *testing.T) {
		d, _ := newTestDiffer(t)
		s := state(3, map[engine.ProtocolID]engine.ProtocolState{"pools": {Schema: intSchema, Data: 10}})
		diff, err := d.Diff(s, s)
		require.NoError(t, err)
		assert.True(t, diff.IsEmpty())
	})

	t.Run("rejects errored states", func(t *testing.T) {
		d, _ := newTestDiffer(t)
		bad := state(1, map[engine.ProtocolID]engine.ProtocolState{"pools": {Schema: intSchema, Error: "boom"}})
		_, err := d.Diff(bad, state(2, nil))
		assert.Error(t, err)
	})

	t.Run("rejects going backwards", func(t *testing.T) {
		d, _ := newTestDiffer(t)
		_, err := d.Diff(state(5, nil), state(4, nil))
		assert.ErrorContains(t, err, "predates")
	})

	t.Run("rejects foreign exchanges", func(t *testing.T) {
		d, _ := newTestDiffer(t)
		other := state(6, nil)
		other.Exchange = common.HexToAddress("0xff")
		_, err := d.Diff(state(5, nil), other)
		assert.ErrorContains(t, err, "different exchanges")
	})

	t.Run("unknown schema", func(t *testing.T) {
		d, _ := newTestDiffer(t)
		_, err := d.Diff(state(1, nil), state(2, map[engine.ProtocolID]engine.ProtocolState{"x": {Schema: "other"}}))
		assert.ErrorContains(t, err, "no differ registered")
	})

	t.Run("schema change", func(t *testing.T) {
		d, _ := newTestDiffer(t)
		old := state(1, map[engine.ProtocolID]engine.ProtocolState{"x": {Schema: "other"}})
		new := state(2, map[engine.ProtocolID]engine.ProtocolState{"x": {Schema: intSchema, Data: 1}})
		_, err := d.Diff(old, new)
		assert.ErrorContains(t, err, "schema of protocol x changed")
	})

	t.Run("protocol differ failure is counted", func(t *testing.T) {
		d, _ := newTestDiffer(t)
		new := state(2, map[engine.ProtocolID]engine.ProtocolState{"pools": {Schema: intSchema, Data: "nope"}})
		_, err := d.Diff(state(1, nil), new)
		require.Error(t, err)
		assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.diffsTotal.WithLabelValues("pools", "error")))
	})
}

func TestNewStateDiffer_Validation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := NewStateDiffer(&StateDifferConfig{Logger: logger})
	assert.Error(t, err)
	_, err = NewStateDiffer(&StateDifferConfig{Registry: prometheus.NewRegistry()})
	assert.Error(t, err)
	_, err = NewStateDiffer(&StateDifferConfig{
		Registry:        prometheus.NewRegistry(),
		Logger:          logger,
		ProtocolDiffers: map[engine.ProtocolSchema]ProtocolDiffer{intSchema: nil},
	})
	assert.Error(t, err)
}
