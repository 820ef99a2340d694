package program

import (
	"fmt"
	"strings"
)

// FieldType is an optional value-type hint for an output field. Typed
// fields are coerced after parsing; coercion failure is a *ParseError.
type FieldType int

const (
	TypeText FieldType = iota
	TypeInt
	TypeFloat
)

type Field struct {
	Name        string
	Description string
	Type        FieldType
}

// Label renders the prompt label for the field, e.g. "generated_blog"
// becomes "Generated Blog:".
func (f Field) Label() string {
	words := strings.Split(f.Name, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ") + ":"
}

// Signature is the typed contract of a single predictor: ordered input
// fields, ordered output fields and the instruction shown to the model.
type Signature struct {
	Inputs      []Field
	Outputs     []Field
	Instruction string
}

// ParseSignature builds a signature from a shorthand such as
// "question -> answer" or "notes, draft -> blog, score:int".
func ParseSignature(sig string) (Signature, error) {
	parts := strings.Split(sig, "->")
	if len(parts) != 2 {
		return Signature{}, fmt.Errorf("invalid signature format: %s", sig)
	}
	inputs, err := parseFieldList(parts[0])
	if err != nil {
		return Signature{}, fmt.Errorf("signature %q: %w", sig, err)
	}
	outputs, err := parseFieldList(parts[1])
	if err != nil {
		return Signature{}, fmt.Errorf("signature %q: %w", sig, err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return Signature{}, fmt.Errorf("signature %q needs at least one input and one output", sig)
	}
	return Signature{Inputs: inputs, Outputs: outputs}, nil
}

func MustParseSignature(sig string) Signature {
	s, err := ParseSignature(sig)
	if err != nil {
		panic(err)
	}
	return s
}

func parseFieldList(list string) ([]Field, error) {
	var fields []Field
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		field := Field{Name: part}
		if name, hint, ok := strings.Cut(part, ":"); ok {
			field.Name = strings.TrimSpace(name)
			switch strings.TrimSpace(hint) {
			case "int":
				field.Type = TypeInt
			case "float":
				field.Type = TypeFloat
			case "str", "text", "":
				field.Type = TypeText
			default:
				return nil, fmt.Errorf("unknown type hint %q", hint)
			}
		}
		fields = append(fields, field)
	}
	return fields, nil
}

// WithDescriptions attaches field descriptions by field name and returns the
// modified signature.
func (s Signature) WithDescriptions(desc map[string]string) Signature {
	for i, f := range s.Inputs {
		if d, ok := desc[f.Name]; ok {
			s.Inputs[i].Description = d
		}
	}
	for i, f := range s.Outputs {
		if d, ok := desc[f.Name]; ok {
			s.Outputs[i].Description = d
		}
	}
	return s
}

// WithInstruction sets the instruction and returns the modified signature.
func (s Signature) WithInstruction(instruction string) Signature {
	s.Instruction = instruction
	return s
}

// Clone returns a deep copy. Compiled predictors must own independent
// instruction strings and field slices.
func (s Signature) Clone() Signature {
	cp := s
	cp.Inputs = append([]Field(nil), s.Inputs...)
	cp.Outputs = append([]Field(nil), s.Outputs...)
	return cp
}
