package program

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Demo is a fully filled-in input/output pair shown verbatim inside a
// rendered prompt. Demo order on a predictor is the order shown to the
// model.
type Demo struct {
	Inputs  map[string]string `json:"inputs"`
	Outputs map[string]string `json:"outputs"`
}

// Predictor is a single LM invocation bound to a signature. It renders a
// prompt from the instruction, the field preamble, its demos and the
// current inputs, invokes the runtime model and parses the declared output
// fields out of the raw response.
type Predictor struct {
	rt    *Runtime
	name  string
	sig   Signature
	demos []Demo
}

func NewPredictor(rt *Runtime, sig Signature) *Predictor {
	return &Predictor{rt: rt, sig: sig.Clone()}
}

// ChainOfThought returns a predictor whose signature gains a leading
// "reasoning" output field so the model thinks step by step before the
// final answer.
func ChainOfThought(rt *Runtime, sig Signature) *Predictor {
	cot := sig.Clone()
	reasoning := Field{
		Name:        "reasoning",
		Description: "Think step by step in order to produce the answer.",
	}
	cot.Outputs = append([]Field{reasoning}, cot.Outputs...)
	return NewPredictor(rt, cot)
}

func (p *Predictor) Name() string {
	return p.name
}

func (p *Predictor) Signature() Signature {
	return p.sig
}

func (p *Predictor) Instruction() string {
	return p.sig.Instruction
}

func (p *Predictor) SetInstruction(instruction string) {
	p.sig.Instruction = instruction
}

// Demos returns a copy of the demonstration sequence in render order.
func (p *Predictor) Demos() []Demo {
	return append([]Demo(nil), p.demos...)
}

func (p *Predictor) SetDemos(demos []Demo) {
	p.demos = append([]Demo(nil), demos...)
}

// Clone deep-copies the predictor onto rt. The copy owns an independent
// instruction string and demo sequence.
func (p *Predictor) Clone(rt *Runtime) *Predictor {
	cp := &Predictor{
		rt:   rt,
		name: p.name,
		sig:  p.sig.Clone(),
	}
	for _, d := range p.demos {
		cp.demos = append(cp.demos, copyDemo(d))
	}
	return cp
}

func copyDemo(d Demo) Demo {
	cp := Demo{Inputs: make(map[string]string, len(d.Inputs)), Outputs: make(map[string]string, len(d.Outputs))}
	for k, v := range d.Inputs {
		cp.Inputs[k] = v
	}
	for k, v := range d.Outputs {
		cp.Outputs[k] = v
	}
	return cp
}

// Render builds the prompt: instruction, field preamble, the demos in
// insertion order, then the current inputs with the output labels left
// blank for the model to fill.
func (p *Predictor) Render(inputs map[string]string) string {
	var buf bytes.Buffer
	if instruction := strings.TrimSpace(p.sig.Instruction); instruction != "" {
		buf.WriteString(instruction)
		buf.WriteString("\n\n")
	}
	p.writePreamble(&buf)
	for _, demo := range p.demos {
		buf.WriteString("---\n\n")
		p.writeDemo(&buf, demo)
	}
	buf.WriteString("---\n\n")
	for _, f := range p.sig.Inputs {
		if v, ok := inputs[f.Name]; ok {
			writeField(&buf, f, v)
		}
	}
	for _, f := range p.sig.Outputs {
		buf.WriteString(f.Label())
		buf.WriteByte('\n')
	}
	return buf.String()
}

func (p *Predictor) writePreamble(buf *bytes.Buffer) {
	buf.WriteString("Follow the following format.\n\n")
	for _, f := range append(append([]Field(nil), p.sig.Inputs...), p.sig.Outputs...) {
		buf.WriteString(f.Label())
		buf.WriteByte(' ')
		if f.Description != "" {
			buf.WriteString(f.Description)
		} else {
			buf.WriteString("${" + f.Name + "}")
		}
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
}

func (p *Predictor) writeDemo(buf *bytes.Buffer, demo Demo) {
	for _, f := range p.sig.Inputs {
		if v, ok := demo.Inputs[f.Name]; ok {
			writeField(buf, f, v)
		}
	}
	for _, f := range p.sig.Outputs {
		if v, ok := demo.Outputs[f.Name]; ok {
			writeField(buf, f, v)
		}
	}
	buf.WriteByte('\n')
}

func writeField(buf *bytes.Buffer, f Field, value string) {
	buf.WriteString(f.Label())
	buf.WriteByte(' ')
	buf.WriteString(value)
	buf.WriteByte('\n')
}

// Run renders the prompt, invokes the model and parses the declared output
// fields. Exactly one history entry is appended per invocation, parse
// failures included.
func (p *Predictor) Run(ctx context.Context, inputs map[string]string) (Prediction, error) {
	prompt := p.Render(inputs)
	entry := Entry{Predictor: p.name, Prompt: prompt, Time: time.Now()}

	resp, err := p.rt.lm.Invoke(ctx, prompt)
	if err != nil {
		entry.Err = err.Error()
		p.rt.history.Append(entry)
		return Prediction{}, err
	}
	entry.Response = resp.Text

	outputs, err := p.parse(resp.Text)
	if err != nil {
		entry.Err = err.Error()
		p.rt.history.Append(entry)
		log.Debug().Err(err).Str("predictor", p.name).Msg("parse model output failed")
		return Prediction{}, err
	}
	p.rt.history.Append(entry)

	if p.rt.trace != nil {
		p.rt.trace.add(TraceStep{
			Predictor: p.name,
			Inputs:    p.boundInputs(inputs),
			Outputs:   outputs,
		})
	}
	return Prediction{Outputs: outputs, Raw: resp.Text}, nil
}

func (p *Predictor) boundInputs(inputs map[string]string) map[string]string {
	bound := make(map[string]string, len(p.sig.Inputs))
	for _, f := range p.sig.Inputs {
		if v, ok := inputs[f.Name]; ok {
			bound[f.Name] = v
		}
	}
	return bound
}

// parse extracts each declared output field by locating its label in the
// raw response, then coerces typed fields.
func (p *Predictor) parse(raw string) (map[string]string, error) {
	outputs := make(map[string]string, len(p.sig.Outputs))
	pos := 0
	for _, f := range p.sig.Outputs {
		start := labelIndex(raw, f.Label(), pos)
		if start < 0 {
			start = labelIndex(raw, f.Label(), 0)
		}
		if start < 0 {
			return nil, &ParseError{Field: f.Name, Reason: "label not found in response"}
		}
		valueStart := start + len(f.Label())
		end := p.nextLabelIndex(raw, valueStart)
		value := strings.TrimSpace(raw[valueStart:end])
		coerced, err := coerce(f, value)
		if err != nil {
			return nil, err
		}
		outputs[f.Name] = coerced
		pos = valueStart
	}
	return outputs, nil
}

// labelIndex finds a label occurrence at a line start, at or after from.
func labelIndex(raw string, label string, from int) int {
	for search := from; search <= len(raw); {
		idx := strings.Index(raw[search:], label)
		if idx < 0 {
			return -1
		}
		abs := search + idx
		if abs == 0 || raw[abs-1] == '\n' {
			return abs
		}
		search = abs + len(label)
	}
	return -1
}

func (p *Predictor) nextLabelIndex(raw string, from int) int {
	end := len(raw)
	for _, f := range p.sig.Outputs {
		if idx := labelIndex(raw, f.Label(), from); idx >= 0 && idx < end {
			end = idx
		}
	}
	return end
}

func coerce(f Field, value string) (string, error) {
	switch f.Type {
	case TypeInt:
		token := firstToken(value)
		n, err := strconv.Atoi(token)
		if err != nil {
			return "", &ParseError{Field: f.Name, Reason: "value " + strconv.Quote(value) + " is not an integer"}
		}
		return strconv.Itoa(n), nil
	case TypeFloat:
		token := firstToken(value)
		x, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return "", &ParseError{Field: f.Name, Reason: "value " + strconv.Quote(value) + " is not a number"}
		}
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	default:
		return value, nil
	}
}

func firstToken(value string) string {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
