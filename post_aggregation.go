package strata

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// PostAggregationKind identifies how a post-aggregation derives its value.
type PostAggregationKind string

const (
	PostAggregationArithmetic         PostAggregationKind = "arithmetic"
	PostAggregationFieldAccess        PostAggregationKind = "fieldAccess"
	PostAggregationConstant           PostAggregationKind = "constant"
	PostAggregationSketchEstimate     PostAggregationKind = "sketchEstimate"
	PostAggregationSketchSetOperation PostAggregationKind = "sketchSetOperation"
)

// ArithmeticFunction is the operator of an arithmetic post-aggregation.
type ArithmeticFunction string

const (
	ArithmeticPlus     ArithmeticFunction = "+"
	ArithmeticMinus    ArithmeticFunction = "-"
	ArithmeticMultiply ArithmeticFunction = "*"
	ArithmeticDivide   ArithmeticFunction = "/"
	// ArithmeticQuotient divides without the zero-divisor guard of ArithmeticDivide.
	ArithmeticQuotient ArithmeticFunction = "quotient"
)

// SketchSetFunction is the set operation applied across sketches.
type SketchSetFunction string

const (
	SketchUnion     SketchSetFunction = "UNION"
	SketchIntersect SketchSetFunction = "INTERSECT"
	SketchNot       SketchSetFunction = "NOT"
)

// PostAggregation is a field computed from other fields of the same plan
// level. Values are immutable.
type PostAggregation struct {
	kind     PostAggregationKind
	name     string
	function string
	value    float64
	fields   []Field
}

// NewArithmeticPostAggregation combines two or more fields with fn.
func NewArithmeticPostAggregation(name string, fn ArithmeticFunction, fields ...Field) (*PostAggregation, error) {
	switch fn {
	case ArithmeticPlus, ArithmeticMinus, ArithmeticMultiply, ArithmeticDivide, ArithmeticQuotient:
	default:
		return nil, NewInvalidAggregationError(name, fmt.Sprintf("unknown arithmetic function %q", fn))
	}
	if len(fields) < 2 {
		return nil, NewInvalidAggregationError(name, "arithmetic post-aggregation requires at least two fields")
	}
	return newPostAggregation(PostAggregationArithmetic, name, string(fn), 0, fields)
}

// NewFieldAccessPostAggregation exposes field under name.
func NewFieldAccessPostAggregation(name string, field Field) (*PostAggregation, error) {
	return newPostAggregation(PostAggregationFieldAccess, name, "", 0, []Field{field})
}

// NewConstantPostAggregation returns a constant value.
func NewConstantPostAggregation(name string, value float64) (*PostAggregation, error) {
	return newPostAggregation(PostAggregationConstant, name, "", value, nil)
}

// NewSketchEstimatePostAggregation estimates the distinct count held by a sketch field.
func NewSketchEstimatePostAggregation(name string, field Field) (*PostAggregation, error) {
	return newPostAggregation(PostAggregationSketchEstimate, name, "", 0, []Field{field})
}

// NewSketchSetOperationPostAggregation combines sketch fields with a set operation.
func NewSketchSetOperationPostAggregation(name string, fn SketchSetFunction, fields ...Field) (*PostAggregation, error) {
	switch fn {
	case SketchUnion, SketchIntersect, SketchNot:
	default:
		return nil, NewInvalidAggregationError(name, fmt.Sprintf("unknown sketch set function %q", fn))
	}
	if len(fields) < 2 {
		return nil, NewInvalidAggregationError(name, "sketch set operation requires at least two fields")
	}
	return newPostAggregation(PostAggregationSketchSetOperation, name, string(fn), 0, fields)
}

func newPostAggregation(kind PostAggregationKind, name, fn string, value float64, fields []Field) (*PostAggregation, error) {
	if strings.TrimSpace(name) == "" {
		return nil, NewInvalidAggregationError(name, "post-aggregation name is required")
	}
	for _, f := range fields {
		if isNilField(f) {
			return nil, NewInvalidAggregationError(name, "post-aggregation references a nil field")
		}
	}
	return &PostAggregation{kind: kind, name: name, function: fn, value: value, fields: slices.Clone(fields)}, nil
}

func (p *PostAggregation) isField() {}

// Name is the output column name.
func (p *PostAggregation) Name() string { return p.name }

// Kind returns the post-aggregation kind.
func (p *PostAggregation) Kind() PostAggregationKind { return p.kind }

// Function returns the arithmetic or set operator, empty for other kinds.
func (p *PostAggregation) Function() string { return p.function }

// Value returns the value of a constant post-aggregation.
func (p *PostAggregation) Value() float64 { return p.value }

// Dependents returns the fields this post-aggregation reads.
func (p *PostAggregation) Dependents() []Field { return slices.Clone(p.fields) }

// WithName returns a copy with a different output name.
func (p *PostAggregation) WithName(name string) *PostAggregation {
	c := *p
	c.name = name
	c.fields = slices.Clone(p.fields)
	return &c
}

// WithFields returns a copy reading fields instead of the current dependents.
func (p *PostAggregation) WithFields(fields ...Field) *PostAggregation {
	c := *p
	c.fields = slices.Clone(fields)
	return &c
}

// Repoint replaces every reference to old, at any depth of the dependency
// tree, with replacement. Unrelated fields are kept as they are.
func (p *PostAggregation) Repoint(old, replacement Field) *PostAggregation {
	changed := false
	fields := make([]Field, len(p.fields))
	for i, f := range p.fields {
		switch {
		case fieldsEqual(f, old):
			fields[i] = replacement
			changed = true
		default:
			if dep, ok := f.(*PostAggregation); ok {
				repointed := dep.Repoint(old, replacement)
				if repointed != dep {
					fields[i] = repointed
					changed = true
					continue
				}
			}
			fields[i] = f
		}
	}
	if !changed {
		return p
	}
	return p.WithFields(fields...)
}

// Equal reports structural equality, including the dependency tree.
func (p *PostAggregation) Equal(other *PostAggregation) bool {
	if p == nil || other == nil {
		return p == other
	}
	if p.kind != other.kind || p.name != other.name || p.function != other.function ||
		p.value != other.value || len(p.fields) != len(other.fields) {
		return false
	}
	for i := range p.fields {
		if !fieldsEqual(p.fields[i], other.fields[i]) {
			return false
		}
	}
	return true
}

func (p *PostAggregation) String() string {
	switch p.kind {
	case PostAggregationConstant:
		return fmt.Sprintf("%s=%g", p.name, p.value)
	default:
		names := make([]string, len(p.fields))
		for i, f := range p.fields {
			names[i] = f.Name()
		}
		op := string(p.kind)
		if p.function != "" {
			op = p.function
		}
		return fmt.Sprintf("%s=%s(%s)", p.name, op, strings.Join(names, ","))
	}
}

type postAggregationJSON struct {
	Type     PostAggregationKind `json:"type"`
	Name     string              `json:"name"`
	Function string              `json:"fn,omitempty"`
	Value    *float64            `json:"value,omitempty"`
	Fields   []string            `json:"fields,omitempty"`
}

// MarshalJSON renders dependents by name.
func (p *PostAggregation) MarshalJSON() ([]byte, error) {
	out := postAggregationJSON{Type: p.kind, Name: p.name, Function: p.function}
	if p.kind == PostAggregationConstant {
		v := p.value
		out.Value = &v
	}
	for _, f := range p.fields {
		out.Fields = append(out.Fields, f.Name())
	}
	return json.Marshal(out)
}

func fieldsEqual(a, b Field) bool {
	switch av := a.(type) {
	case *Aggregation:
		bv, ok := b.(*Aggregation)
		return ok && av.Equal(bv)
	case *PostAggregation:
		bv, ok := b.(*PostAggregation)
		return ok && av.Equal(bv)
	default:
		return a == nil && b == nil
	}
}

func isNilField(f Field) bool {
	switch v := f.(type) {
	case nil:
		return true
	case *Aggregation:
		return v == nil
	case *PostAggregation:
		return v == nil
	default:
		return false
	}
}
