package program

import (
	"encoding/json"
	"fmt"
)

type predictorState struct {
	Name        string `json:"name"`
	Instruction string `json:"instruction"`
	Demos       []Demo `json:"demos"`
}

type programState struct {
	Predictors []predictorState `json:"predictors"`
}

// MarshalState serializes the compiled configuration: every predictor's
// instruction and demo sequence, in program order. The encoding is stable,
// so deserializing and re-serializing an unmodified program is
// byte-identical.
func (p *Program) MarshalState() ([]byte, error) {
	state := programState{}
	for _, name := range p.names {
		pred := p.preds[name]
		state.Predictors = append(state.Predictors, predictorState{
			Name:        name,
			Instruction: pred.sig.Instruction,
			Demos:       pred.demos,
		})
	}
	return json.MarshalIndent(state, "", "  ")
}

// UnmarshalState installs a serialized configuration onto this program's
// predictors. The program structure must match: same predictor names, same
// order.
func (p *Program) UnmarshalState(data []byte) error {
	var state programState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("decode program state: %w", err)
	}
	if len(state.Predictors) != len(p.names) {
		return fmt.Errorf("program state has %d predictors, program has %d", len(state.Predictors), len(p.names))
	}
	for i, ps := range state.Predictors {
		if ps.Name != p.names[i] {
			return fmt.Errorf("program state predictor %d is %q, program has %q", i, ps.Name, p.names[i])
		}
	}
	for _, ps := range state.Predictors {
		pred := p.preds[ps.Name]
		pred.sig.Instruction = ps.Instruction
		pred.demos = ps.Demos
	}
	return nil
}
