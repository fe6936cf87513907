package regmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d16(key string, addr uint16) Descriptor {
	return Descriptor{Key: key, Address: addr, Words: 1, Rule: RuleUnsigned16}
}

func d32(key string, addr uint16) Descriptor {
	return Descriptor{Key: key, Address: addr, Words: 2, Rule: RuleSigned32}
}

func TestPlanMergesAdjacent(t *testing.T) {
	groups := PlanRequests([]Descriptor{d16("a", 100), d16("b", 101), d32("c", 102)}, PlanOptions{})

	require.Len(t, groups, 1)
	assert.Equal(t, uint16(100), groups[0].Start)
	assert.Equal(t, uint16(4), groups[0].Count)
	assert.Equal(t, []string{"a", "b", "c"}, groups[0].Keys())
}

func TestPlanMergesOverlapping(t *testing.T) {
	// A status register and its raw numeric twin share one address.
	groups := PlanRequests([]Descriptor{d16("mode_num", 640), d16("mode", 640)}, PlanOptions{})

	require.Len(t, groups, 1)
	assert.Equal(t, uint16(640), groups[0].Start)
	assert.Equal(t, uint16(1), groups[0].Count)
	assert.Len(t, groups[0].Descriptors, 2)
}

func TestPlanBridgesSmallGaps(t *testing.T) {
	groups := PlanRequests([]Descriptor{d16("a", 100), d16("b", 105)}, PlanOptions{MaxGap: 4})

	require.Len(t, groups, 1)
	assert.Equal(t, uint16(100), groups[0].Start)
	assert.Equal(t, uint16(6), groups[0].Count)
}

func TestPlanSplitsOnLargeGap(t *testing.T) {
	groups := PlanRequests([]Descriptor{d16("a", 100), d16("b", 106)}, PlanOptions{MaxGap: 4})

	require.Len(t, groups, 2)
	assert.Equal(t, uint16(100), groups[0].Start)
	assert.Equal(t, uint16(106), groups[1].Start)
}

func TestPlanRespectsMaxRegisters(t *testing.T) {
	descs := []Descriptor{d16("a", 0), d16("b", 5), d16("c", 10)}
	groups := PlanRequests(descs, PlanOptions{MaxRegisters: 8, MaxGap: 8})

	require.Len(t, groups, 2)
	assert.Equal(t, uint16(0), groups[0].Start)
	assert.Equal(t, uint16(6), groups[0].Count)
	assert.Equal(t, uint16(10), groups[1].Start)
}

func TestPlanSortsUnorderedInput(t *testing.T) {
	groups := PlanRequests([]Descriptor{d16("b", 101), d16("a", 100)}, PlanOptions{})

	require.Len(t, groups, 1)
	assert.Equal(t, []string{"a", "b"}, groups[0].Keys())
}

func TestPlanDefaultMapCoversEveryDescriptor(t *testing.T) {
	m := Default()
	enabled := m.Enabled()
	groups := PlanRequests(enabled, PlanOptions{})

	total := 0
	for _, g := range groups {
		assert.LessOrEqual(t, int(g.Count), DefaultMaxRegisters)
		for _, d := range g.Descriptors {
			assert.GreaterOrEqual(t, d.Address, g.Start)
			assert.LessOrEqual(t, int(d.Address)+int(d.Words), int(g.Start)+int(g.Count))
		}
		total += len(g.Descriptors)
	}
	assert.Equal(t, len(enabled), total)

	// Far apart blocks (e.g. 749, 1149, 1999) must not share a request.
	assert.Greater(t, len(groups), 5)
}
