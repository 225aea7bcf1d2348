package gate

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dump = `{
  "base_score": 0.5,
  "features": ["rsi", "vol_z"],
  "trees": [
    {"nodeid":0,"split":"f0","split_condition":30,"yes":1,"no":2,"missing":2,"children":[
      {"nodeid":1,"leaf":1.5},
      {"nodeid":2,"split":"vol_z","split_condition":2,"yes":3,"no":4,"missing":3,"children":[
        {"nodeid":3,"leaf":-0.5},
        {"nodeid":4,"leaf":0.5}
      ]}
    ]},
    {"nodeid":0,"leaf":0.25}
  ]
}`

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func TestPredict(t *testing.T) {
	m, err := Parse([]byte(dump))
	require.NoError(t, err)
	assert.Equal(t, 2, m.Trees())

	assert.InDelta(t, sigmoid(1.75), m.Predict(map[string]float64{"rsi": 20, "vol_z": 0}), 1e-12)
	assert.InDelta(t, sigmoid(-0.25), m.Predict(map[string]float64{"rsi": 50, "vol_z": 1}), 1e-12)
	assert.InDelta(t, sigmoid(0.75), m.Predict(map[string]float64{"rsi": 50, "vol_z": 3}), 1e-12)
}

func TestPredict_MissingFollowsMissingBranch(t *testing.T) {
	m, err := Parse([]byte(dump))
	require.NoError(t, err)
	// rsi missing -> node 2; vol_z NaN -> node 3
	p := m.Predict(map[string]float64{"vol_z": math.NaN()})
	assert.InDelta(t, sigmoid(-0.25), p, 1e-12)
}

func TestParse_BareArrayAndRepair(t *testing.T) {
	m, err := Parse([]byte(`[{"nodeid":0,"leaf":0.0}]`))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, m.Predict(nil), 1e-12)

	// trailing comma and missing closing bracket
	m, err = Parse([]byte(`[{"nodeid":0,"leaf":1.0},`))
	require.NoError(t, err)
	assert.InDelta(t, sigmoid(1), m.Predict(nil), 1e-12)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte(`{"base_score": 0.5, "trees": []}`))
	assert.ErrorIs(t, err, ErrInvalidModel)

	_, err = Parse([]byte(`{"base_score": 1.5, "trees": [{"nodeid":0,"leaf":1}]}`))
	assert.ErrorIs(t, err, ErrInvalidModel)
}

func TestFilter(t *testing.T) {
	m, err := Parse([]byte(dump))
	require.NoError(t, err)
	f := &Filter{Model: m, Threshold: 0.7}

	ok, p := f.Allow(map[string]float64{"rsi": 20})
	assert.False(t, ok)
	assert.Greater(t, p, 0.7)

	ok, _ = f.Allow(map[string]float64{"rsi": 50, "vol_z": 1})
	assert.True(t, ok)

	var none *Filter
	ok, _ = none.Allow(nil)
	assert.True(t, ok)
	ok, _ = (&Filter{}).Allow(nil)
	assert.True(t, ok)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gate.json")
	require.NoError(t, os.WriteFile(path, []byte(dump), 0o644))
	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"rsi", "vol_z"}, m.Features)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
