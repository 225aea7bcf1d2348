package strategy

import (
	"math"
	"math/rand"
	"testing"

	"QuantBench/internal/model"
)

func TestHysteresis_Step(t *testing.T) {
	h := Hysteresis{Upper: 55, Lower: 45}
	cases := []struct {
		state  model.PositionState
		value  float64
		want   model.PositionState
		action model.Action
	}{
		{model.Flat, 50, model.Flat, model.Hold},
		{model.Flat, 55, model.Flat, model.Hold},
		{model.Flat, 56, model.Long, model.EnterLong},
		{model.Long, 50, model.Long, model.Hold},
		{model.Long, 45, model.Long, model.Hold},
		{model.Long, 44, model.Flat, model.ExitLong},
		{model.Long, math.NaN(), model.Long, model.Hold},
		{model.Flat, math.NaN(), model.Flat, model.Hold},
	}
	for _, c := range cases {
		got, action := h.Step(c.state, c.value)
		if got != c.want || action != c.action {
			t.Errorf("Step(%s, %.1f) = %s/%s, want %s/%s", c.state, c.value, got, action, c.want, c.action)
		}
	}
}

func TestHysteresis_ActionsMatchStates(t *testing.T) {
	h := Hysteresis{Upper: 60, Lower: 40}
	rng := rand.New(rand.NewSource(7))
	values := make([]float64, 500)
	for i := range values {
		values[i] = rng.Float64() * 100
	}
	states, actions := h.Run(values)
	prev := model.Flat
	for i := range values {
		switch actions[i] {
		case model.EnterLong:
			if prev != model.Flat || states[i] != model.Long {
				t.Fatalf("bar %d: enter from %s to %s", i, prev, states[i])
			}
		case model.ExitLong:
			if prev != model.Long || states[i] != model.Flat {
				t.Fatalf("bar %d: exit from %s to %s", i, prev, states[i])
			}
		default:
			if states[i] != prev {
				t.Fatalf("bar %d: state changed on hold", i)
			}
		}
		prev = states[i]
	}
}

func TestHysteresis_Validate(t *testing.T) {
	if err := (Hysteresis{Upper: 40, Lower: 40}).Validate(); err == nil {
		t.Error("expected error for equal bands")
	}
}
