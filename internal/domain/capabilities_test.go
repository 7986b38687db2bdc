package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapabilityBitLayout(t *testing.T) {
	tests := []struct {
		cap      Capabilities
		expected uint32
	}{
		{CapLoadedSources, 1 << 0},
		{CapModules, 1 << 1},
		{CapRestart, 1 << 2},
		{CapSetExpression, 1 << 3},
		{CapSingleThreadExecution, 1 << 4},
		{CapStepBack, 1 << 5},
		{CapSteppingGranularity, 1 << 6},
		{CapTerminateThreads, 1 << 7},
	}

	for _, tt := range tests {
		t.Run(tt.cap.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, uint32(tt.cap))
		})
	}
	assert.Equal(t, uint32(0xff), uint32(CapAll))
}

func TestCapabilitySetOperations(t *testing.T) {
	a := Capabilities(0b001)
	b := Capabilities(0b010)

	assert.Equal(t, Capabilities(0b011), a.Union(b))
	assert.Equal(t, Capabilities(0), a.Intersect(b))
	assert.Equal(t, a, a.Union(b).Without(b))
	assert.True(t, a.Union(b).Has(a))
	assert.False(t, a.Has(b))
	assert.True(t, a.SubsetOf(a.Union(b)))
	assert.False(t, a.Union(b).SubsetOf(a))
	assert.True(t, CapAll.Valid())
	assert.False(t, Capabilities(1<<12).Valid())
}

func TestUnionAll(t *testing.T) {
	assert.Equal(t, Capabilities(0), UnionAll(nil))
	assert.Equal(t, Capabilities(0b111), UnionAll([]Capabilities{0b001, 0b010, 0b100, 0b001}))
}

func TestParseCapabilities(t *testing.T) {
	tests := []struct {
		input    string
		expected Capabilities
	}{
		{"", 0},
		{"none", 0},
		{"restart", CapRestart},
		{"Restart, step_back", CapRestart | CapStepBack},
		{"all", CapAll},
		{"modules,,loaded_sources", CapModules | CapLoadedSources},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCapabilities(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	_, err := ParseCapabilities("restart,teleport")
	assert.Error(t, err)
}

func TestCapabilityNames(t *testing.T) {
	assert.Equal(t, "none", Capabilities(0).String())
	assert.Equal(t, []string{"modules", "restart"}, (CapRestart | CapModules).Names())
	assert.Equal(t, "restart,terminate_threads", (CapTerminateThreads | CapRestart).String())
}

func TestDebugClientClone(t *testing.T) {
	c := &DebugClient{ID: 1, ProjectID: 10, SessionID: 100, PanelItem: []byte("bp@line5")}
	cp := c.Clone()
	cp.PanelItem[0] = 'X'

	assert.Equal(t, "bp@line5", string(c.PanelItem))
	assert.Equal(t, ClientKey{ID: 1, ProjectID: 10}, cp.Key())
	assert.Equal(t, "1@10", cp.Key().String())
	assert.Nil(t, (*DebugClient)(nil).Clone())
}
