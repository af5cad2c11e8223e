package congestion

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trafficlens/trafficlens/internal/network"
)

func testEdges() []network.Edge {
	return []network.Edge{
		{ID: "E1", SpeedLimit: 13.89},
		{ID: "E2", SpeedLimit: 13.89},
		{ID: "E3", SpeedLimit: 13.89},
	}
}

func newUnthrottled() *Classifier {
	return New(Config{MinInterval: -1, Logger: zerolog.Nop()})
}

func samplesOn(edgeID string, n int) []VehicleSample {
	out := make([]VehicleSample, n)
	for i := range out {
		out[i] = VehicleSample{EdgeID: edgeID}
	}
	return out
}

func TestClassifyByCountBuckets(t *testing.T) {
	c := newUnthrottled()
	edges := []network.Edge{{ID: "E1"}}

	cases := []struct {
		count int
		want  Level
	}{
		{0, LevelDefault},
		{1, LevelLight},
		{2, LevelLight},
		{3, LevelModerate}, // boundary-inclusive
		{5, LevelModerate},
		{6, LevelHeavy}, // boundary-inclusive
		{12, LevelHeavy},
	}
	for _, tc := range cases {
		levels, ok := c.ClassifyByCount(edges, samplesOn("E1", tc.count))
		require.True(t, ok)
		assert.Equal(t, tc.want, levels["E1"], "count=%d", tc.count)
	}
}

func TestClassifyByCountMonotonic(t *testing.T) {
	c := newUnthrottled()
	edges := []network.Edge{{ID: "E1"}}

	rank := map[Level]int{LevelDefault: 0, LevelLight: 1, LevelModerate: 2, LevelHeavy: 3}
	prev := -1
	for n := 0; n <= 10; n++ {
		levels, ok := c.ClassifyByCount(edges, samplesOn("E1", n))
		require.True(t, ok)
		current := rank[levels["E1"]]
		assert.GreaterOrEqual(t, current, prev, "severity must never decrease with count")
		prev = current
	}
}

func TestClassifyByCountCoversAllEdges(t *testing.T) {
	c := newUnthrottled()

	levels, ok := c.ClassifyByCount(testEdges(), samplesOn("E2", 4))
	require.True(t, ok)
	require.Len(t, levels, 3)
	assert.Equal(t, LevelDefault, levels["E1"])
	assert.Equal(t, LevelModerate, levels["E2"])
	assert.Equal(t, LevelDefault, levels["E3"])
}

func TestClassifyResolvesEdgeFromLaneID(t *testing.T) {
	c := newUnthrottled()
	samples := []VehicleSample{
		{LaneID: "E1_0"},
		{LaneID: "E1_3"},
		{EdgeID: "E1"}, // explicit edge reference wins over lane derivation
		{},             // no reference at all contributes nothing
	}

	levels, ok := c.ClassifyByCount([]network.Edge{{ID: "E1"}}, samples)
	require.True(t, ok)
	assert.Equal(t, LevelModerate, levels["E1"])
}

func TestClassifyByRatioBuckets(t *testing.T) {
	c := newUnthrottled()
	edges := []network.Edge{{ID: "E1", SpeedLimit: 10}}

	cases := []struct {
		speeds []VehicleSample
		want   Level
	}{
		{[]VehicleSample{{EdgeID: "E1", Speed: 9}}, LevelGreen},
		{[]VehicleSample{{EdgeID: "E1", Speed: 7}}, LevelGreen}, // 0.7 inclusive
		{[]VehicleSample{{EdgeID: "E1", Speed: 5}}, LevelOrange},
		{[]VehicleSample{{EdgeID: "E1", Speed: 4}}, LevelOrange}, // 0.4 inclusive
		{[]VehicleSample{{EdgeID: "E1", Speed: 1}}, LevelRed},
		// Mean of 2 and 12 is 7: green.
		{[]VehicleSample{{EdgeID: "E1", Speed: 2}, {EdgeID: "E1", Speed: 12}}, LevelGreen},
		// Speeds above the limit clamp to ratio 1, still green.
		{[]VehicleSample{{EdgeID: "E1", Speed: 30}}, LevelGreen},
	}
	for i, tc := range cases {
		levels, ok := c.ClassifyByRatio(edges, tc.speeds)
		require.True(t, ok)
		assert.Equal(t, tc.want, levels["E1"], "case %d", i)
	}
}

func TestClassifyByRatioOmitsUnsampledEdges(t *testing.T) {
	c := newUnthrottled()

	levels, ok := c.ClassifyByRatio(testEdges(), []VehicleSample{{EdgeID: "E2", Speed: 3}})
	require.True(t, ok)
	require.Len(t, levels, 1)
	assert.Contains(t, levels, "E2")
}

func TestClassifyByRatioZeroLimitFloor(t *testing.T) {
	c := newUnthrottled()
	edges := []network.Edge{{ID: "E1", SpeedLimit: 0}}

	// Limit floors at 0.1, so any positive speed saturates the ratio.
	levels, ok := c.ClassifyByRatio(edges, []VehicleSample{{EdgeID: "E1", Speed: 1}})
	require.True(t, ok)
	assert.Equal(t, LevelGreen, levels["E1"])
}

func TestClassifierThrottleSilentlySkips(t *testing.T) {
	now := time.Unix(0, 0)
	c := New(Config{Logger: zerolog.Nop(), now: func() time.Time { return now }})
	edges := []network.Edge{{ID: "E1"}}

	_, ok := c.ClassifyByCount(edges, nil)
	require.True(t, ok)

	// Within the window: skipped, no error surfaced anywhere.
	now = now.Add(100 * time.Millisecond)
	levels, ok := c.ClassifyByCount(edges, samplesOn("E1", 6))
	assert.False(t, ok)
	assert.Nil(t, levels)
	assert.Equal(t, uint64(1), c.Skips())

	// Past the window: admitted again.
	now = now.Add(DefaultMinInterval)
	_, ok = c.ClassifyByCount(edges, nil)
	assert.True(t, ok)

	// Both policies share the same throttle.
	now = now.Add(100 * time.Millisecond)
	_, ok = c.ClassifyByRatio(edges, nil)
	assert.False(t, ok)
	assert.Equal(t, uint64(2), c.Skips())
}
