package identity

import (
	"testing"
	"time"

	"github.com/malbeclabs/blockprop/internal/dataset"
	"github.com/malbeclabs/blockprop/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentity_Username(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{"known prefix", "pub-asn-city/robustdigress65/hashed-446c3e10", "robustdigress65", true},
		{"reserved segment skipped", "ethpandaops/mainnet/sigma-mainnet-prysm-reth-001", "sigma-mainnet-prysm-reth-001", true},
		{"prefix case insensitive", "ETHPANDAOPS/alice/node-1", "alice", true},
		{"no asn prefix", "pub-noasn-city/bob/hashed-1", "bob", true},
		{"unknown prefix", "someone/node-1", "someone", true},
		{"short user after prefix", "ethpandaops/x/node-1", "node-1", true},
		{"reserved as last segment", "ethpandaops/mainnet", "mainnet", true},
		{"single segment", "lonely", "", false},
		{"ignored", "Unknown", "", false},
		{"ignored null", "null", "", false},
		{"empty", "   ", "", false},
		{"only short segments", "a/b", "", false},
		{"trimmed", "  pub-asn-city/ carol /n ", "carol", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := Username(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIdentity_NodeID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{"three segments", "pub-asn-city/robustdigress65/hashed-446c3e10", "hashed-446c3e10", true},
		{"ethpandaops", "ethpandaops/mainnet/sigma-mainnet-prysm-reth-001", "sigma-mainnet-prysm-reth-001", true},
		{"two segments", "someone/node-1", "node-1", true},
		{"empty third segment", "a/b/", "", false},
		{"single segment", "lonely", "", false},
		{"empty", "", "", false},
		{"more segments", "a/b/c/d", "c", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := NodeID(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIdentity_FilterNode(t *testing.T) {
	t.Parallel()

	obs := &stats.Observations{
		Network:   "mainnet",
		Slot:      []int64{1, 2, 3},
		Epoch:     []int64{0, 0, 0},
		EventTime: make([]time.Time, 3),
		Hour:      []int{0, 0, 0},
		BlockID:   []string{"1_0", "2_0", "3_0"},
		RawMs:     []float64{100, 200, 300},
		CappedMs:  []float64{100, 200, 300},
		Slow:      []bool{false, false, true},
		Labels: map[dataset.Field][]string{
			dataset.FieldClientName: {
				"pub-asn-city/alice/node-a",
				"pub-asn-city/bob/node-b",
				"ethpandaops/mainnet/node-a",
			},
		},
	}

	got, err := FilterNode(obs, "node-a")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, got.Slot)
	assert.Equal(t, []float64{100, 300}, got.RawMs)
	assert.Equal(t, "mainnet", got.Network)

	got, err = FilterNode(obs, "missing")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())

	delete(obs.Labels, dataset.FieldClientName)
	_, err = FilterNode(obs, "node-a")
	require.ErrorIs(t, err, stats.ErrMissingField)
}

func TestIdentity_Usernames_FilterUser(t *testing.T) {
	t.Parallel()

	names := []string{
		"pub-asn-city/bob/node-b",
		"pub-asn-city/alice/node-a1",
		"unknown",
		"pub-asn-city/alice/node-a2",
		"ethpandaops/mainnet/sigma-001",
		"pub-asn-city/bob/node-b",
	}
	obs := &stats.Observations{
		Slot:      []int64{1, 2, 3, 4, 5, 6},
		Epoch:     make([]int64, 6),
		EventTime: make([]time.Time, 6),
		Hour:      make([]int, 6),
		BlockID:   make([]string, 6),
		RawMs:     []float64{10, 20, 30, 40, 50, 60},
		CappedMs:  []float64{10, 20, 30, 40, 50, 60},
		Slow:      make([]bool, 6),
		Labels:    map[dataset.Field][]string{dataset.FieldClientName: names},
	}

	p, err := DefaultParser()
	require.NoError(t, err)

	users, err := p.Usernames(obs)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "sigma-001"}, users)

	alice, err := p.FilterUser(obs, "alice")
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 4}, alice.Slot)

	none, err := p.FilterUser(obs, "unknown")
	require.NoError(t, err)
	assert.Equal(t, 0, none.Len())

	delete(obs.Labels, dataset.FieldClientName)
	_, err = p.Usernames(obs)
	require.ErrorIs(t, err, stats.ErrMissingField)
	_, err = p.FilterUser(obs, "alice")
	require.ErrorIs(t, err, stats.ErrMissingField)
}

func TestIdentity_Redacted(t *testing.T) {
	t.Parallel()

	p, err := DefaultParser()
	require.NoError(t, err)
	assert.True(t, p.Redacted("REDACTED"))
	assert.False(t, p.Redacted("Berlin"))
}

func TestIdentity_NewParserFromYAML(t *testing.T) {
	t.Parallel()

	_, err := newParserFromYAML([]byte("prefixes: [\n"))
	require.Error(t, err)

	_, err = newParserFromYAML([]byte("ignored: [unknown]\n"))
	require.Error(t, err)

	p, err := newParserFromYAML([]byte("prefixes: [corp]\nmin_username_length: 3\n"))
	require.NoError(t, err)
	got, ok := p.Username("corp/ab/node")
	assert.True(t, ok)
	assert.Equal(t, "node", got)
}
