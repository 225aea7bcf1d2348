package strategy

import (
	"fmt"
	"math"

	"QuantBench/internal/features"
	"QuantBench/internal/model"
)

// Hysteresis is a two-band state machine: go long above Upper, go flat below Lower.
type Hysteresis struct {
	Upper float64
	Lower float64
}

// Validate requires Lower < Upper.
func (h Hysteresis) Validate() error {
	if !(h.Lower < h.Upper) {
		return fmt.Errorf("hysteresis lower band %.2f must be below upper %.2f", h.Lower, h.Upper)
	}
	return nil
}

// Step advances the machine by one observation. NaN holds the current state.
func (h Hysteresis) Step(state model.PositionState, value float64) (model.PositionState, model.Action) {
	if math.IsNaN(value) {
		return state, model.Hold
	}
	switch state {
	case model.Long:
		if value < h.Lower {
			return model.Flat, model.ExitLong
		}
	default:
		if value > h.Upper {
			return model.Long, model.EnterLong
		}
		return model.Flat, model.Hold
	}
	return state, model.Hold
}

// Run steps the machine over values starting flat.
func (h Hysteresis) Run(values []float64) ([]model.PositionState, []model.Action) {
	states := make([]model.PositionState, len(values))
	actions := make([]model.Action, len(values))
	state := model.Flat
	for i, v := range values {
		state, actions[i] = h.Step(state, v)
		states[i] = state
	}
	return states, actions
}

// RSIHysteresis applies h to the frame's RSI column.
func RSIHysteresis(f *features.Frame, h Hysteresis) ([]model.PositionState, []model.Action, error) {
	if err := h.Validate(); err != nil {
		return nil, nil, err
	}
	rsi, err := f.Column(features.RSI)
	if err != nil {
		return nil, nil, err
	}
	states, actions := h.Run(rsi)
	return states, actions, nil
}
