package program

import "sort"

// Example is an immutable labeled data point. Fields marked as inputs are
// shown to the model; the remaining label fields are only used for metric
// computation or to build demonstrations.
type Example struct {
	fields map[string]string
	inputs map[string]bool
}

// NewExample copies the given fields into an immutable example.
func NewExample(fields map[string]string) Example {
	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return Example{fields: cp, inputs: map[string]bool{}}
}

// WithInputs marks the named fields as inputs and returns a new example.
func (e Example) WithInputs(names ...string) Example {
	inputs := make(map[string]bool, len(names))
	for _, n := range names {
		inputs[n] = true
	}
	return Example{fields: e.fields, inputs: inputs}
}

// Get returns the value of a field, or "" when absent.
func (e Example) Get(name string) string {
	return e.fields[name]
}

// Has reports whether the field exists.
func (e Example) Has(name string) bool {
	_, ok := e.fields[name]
	return ok
}

// Inputs returns a copy of the input-marked fields.
func (e Example) Inputs() map[string]string {
	res := make(map[string]string, len(e.inputs))
	for name := range e.inputs {
		if v, ok := e.fields[name]; ok {
			res[name] = v
		}
	}
	return res
}

// Labels returns a copy of the non-input fields.
func (e Example) Labels() map[string]string {
	res := make(map[string]string)
	for name, v := range e.fields {
		if !e.inputs[name] {
			res[name] = v
		}
	}
	return res
}

// FieldNames returns every field name in sorted order.
func (e Example) FieldNames() []string {
	names := make([]string, 0, len(e.fields))
	for name := range e.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Prediction is the structured output of a program forward pass.
type Prediction struct {
	Outputs map[string]string
	Raw     string
}

// Get returns an output field value, or "" when absent.
func (p Prediction) Get(name string) string {
	return p.Outputs[name]
}
