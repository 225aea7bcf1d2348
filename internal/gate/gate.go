// Package gate scores candidate entries with a boosted-tree classifier and
// vetoes those it considers likely to fail.
package gate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"go.uber.org/zap"
)

// ErrInvalidModel is returned when a model file cannot be decoded.
var ErrInvalidModel = errors.New("invalid tree model")

// Node is one node of an XGBoost JSON tree dump.
type Node struct {
	NodeID         int      `json:"nodeid"`
	Split          string   `json:"split,omitempty"`
	SplitCondition float64  `json:"split_condition,omitempty"`
	Yes            int      `json:"yes,omitempty"`
	No             int      `json:"no,omitempty"`
	Missing        int      `json:"missing,omitempty"`
	Leaf           *float64 `json:"leaf,omitempty"`
	Children       []*Node  `json:"children,omitempty"`
}

type tree struct {
	root  *Node
	nodes map[int]*Node
}

// Model is a binary logistic tree ensemble.
type Model struct {
	BaseScore float64
	Features  []string
	trees     []tree
}

type modelFile struct {
	BaseScore *float64        `json:"base_score"`
	Features  []string        `json:"features"`
	Trees     json.RawMessage `json:"trees"`
}

// Load reads a model from path.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	return Parse(data)
}

// Parse decodes either {"base_score", "features", "trees"} or a bare array of
// trees. Malformed JSON gets one repair attempt before failing.
func Parse(data []byte) (*Model, error) {
	m, err := parse(data)
	if err == nil {
		return m, nil
	}
	repaired, rerr := jsonrepair.JSONRepair(string(data))
	if rerr != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	m, err = parse([]byte(repaired))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	zap.S().Warnf("tree model needed JSON repair before loading")
	return m, nil
}

func parse(data []byte) (*Model, error) {
	data = bytes.TrimSpace(data)
	m := &Model{BaseScore: 0.5}
	var roots []*Node

	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &roots); err != nil {
			return nil, err
		}
	} else {
		var mf modelFile
		if err := json.Unmarshal(data, &mf); err != nil {
			return nil, err
		}
		if mf.BaseScore != nil {
			m.BaseScore = *mf.BaseScore
		}
		m.Features = mf.Features
		if err := json.Unmarshal(mf.Trees, &roots); err != nil {
			return nil, fmt.Errorf("trees: %w", err)
		}
	}
	if m.BaseScore <= 0 || m.BaseScore >= 1 {
		return nil, fmt.Errorf("base_score %.4f outside (0, 1)", m.BaseScore)
	}
	if len(roots) == 0 {
		return nil, errors.New("model has no trees")
	}
	for i, r := range roots {
		t, err := index(r)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		m.trees = append(m.trees, t)
	}
	return m, nil
}

func index(root *Node) (tree, error) {
	if root == nil {
		return tree{}, errors.New("empty tree")
	}
	t := tree{root: root, nodes: make(map[int]*Node)}
	stack := []*Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, dup := t.nodes[n.NodeID]; dup {
			return tree{}, fmt.Errorf("duplicate node id %d", n.NodeID)
		}
		t.nodes[n.NodeID] = n
		if n.Leaf == nil && len(n.Children) == 0 {
			return tree{}, fmt.Errorf("node %d is neither split nor leaf", n.NodeID)
		}
		stack = append(stack, n.Children...)
	}
	return t, nil
}

// Trees returns the number of trees in the ensemble.
func (m *Model) Trees() int { return len(m.trees) }

// Margin is the raw log-odds: logit(base_score) plus the sum of leaf values.
func (m *Model) Margin(row map[string]float64) float64 {
	margin := math.Log(m.BaseScore / (1 - m.BaseScore))
	for _, t := range m.trees {
		margin += m.walk(t, row)
	}
	return margin
}

// Predict returns the positive-class probability for a feature row.
func (m *Model) Predict(row map[string]float64) float64 {
	return 1 / (1 + math.Exp(-m.Margin(row)))
}

func (m *Model) walk(t tree, row map[string]float64) float64 {
	n := t.root
	for depth := 0; depth <= len(t.nodes); depth++ {
		if n.Leaf != nil {
			return *n.Leaf
		}
		v, ok := row[m.featureName(n.Split)]
		next := n.Missing
		if ok && !math.IsNaN(v) {
			if v < n.SplitCondition {
				next = n.Yes
			} else {
				next = n.No
			}
		}
		child, found := t.nodes[next]
		if !found {
			return 0
		}
		n = child
	}
	return 0
}

// featureName maps XGBoost's positional "f<N>" names onto Features when present.
func (m *Model) featureName(split string) string {
	if len(m.Features) == 0 || !strings.HasPrefix(split, "f") {
		return split
	}
	idx, err := strconv.Atoi(split[1:])
	if err != nil || idx < 0 || idx >= len(m.Features) {
		return split
	}
	return m.Features[idx]
}

// Filter vetoes entries whose predicted failure probability reaches Threshold.
type Filter struct {
	Model     *Model
	Threshold float64
}

// Allow reports whether the entry may proceed and the model's probability.
// A filter without a model allows everything.
func (f *Filter) Allow(row map[string]float64) (bool, float64) {
	if f == nil || f.Model == nil {
		return true, 0
	}
	p := f.Model.Predict(row)
	return p < f.Threshold, p
}
