package strata

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// AggregationKind identifies one member of the closed set of aggregations.
type AggregationKind string

const (
	AggregationLongSum     AggregationKind = "longSum"
	AggregationDoubleSum   AggregationKind = "doubleSum"
	AggregationLongMin     AggregationKind = "longMin"
	AggregationLongMax     AggregationKind = "longMax"
	AggregationDoubleMin   AggregationKind = "doubleMin"
	AggregationDoubleMax   AggregationKind = "doubleMax"
	AggregationCount       AggregationKind = "count"
	AggregationThetaSketch AggregationKind = "thetaSketch"
	AggregationSketchCount AggregationKind = "sketchCount"
	AggregationSketchMerge AggregationKind = "sketchMerge"
	AggregationFiltered    AggregationKind = "filtered"
	AggregationCardinality AggregationKind = "cardinality"
	AggregationLongFirst   AggregationKind = "longFirst"
	AggregationLongLast    AggregationKind = "longLast"
	AggregationDoubleFirst AggregationKind = "doubleFirst"
	AggregationDoubleLast  AggregationKind = "doubleLast"
	AggregationStringFirst AggregationKind = "stringFirst"
	AggregationStringLast  AggregationKind = "stringLast"
	AggregationLongAny     AggregationKind = "longAny"
	AggregationDoubleAny   AggregationKind = "doubleAny"
	AggregationStringAny   AggregationKind = "stringAny"
)

// DefaultSketchSize is used when a sketch aggregation is built without a size.
const DefaultSketchSize = 16384

// nestStrategy selects how an aggregation splits across two passes.
type nestStrategy uint8

const (
	// nestRepeat runs the same aggregation at both levels, chained through a
	// column named after the aggregation.
	nestRepeat nestStrategy = iota
	// nestSumCounts counts once and sums the partial counts.
	nestSumCounts
	// nestUnsplittable keeps the aggregation at the outer level only.
	nestUnsplittable
	// nestFilterOnce applies the wrapped filter on the inner pass only.
	nestFilterOnce
	// nestMergeSketches unions sketches on the inner pass, then counts them.
	nestMergeSketches
)

type aggregationKindInfo struct {
	sketch         bool
	hasSourceField bool
	nest           nestStrategy
}

var aggregationKindInfoTable = map[AggregationKind]aggregationKindInfo{
	AggregationLongSum:     {hasSourceField: true, nest: nestRepeat},
	AggregationDoubleSum:   {hasSourceField: true, nest: nestRepeat},
	AggregationLongMin:     {hasSourceField: true, nest: nestRepeat},
	AggregationLongMax:     {hasSourceField: true, nest: nestRepeat},
	AggregationDoubleMin:   {hasSourceField: true, nest: nestRepeat},
	AggregationDoubleMax:   {hasSourceField: true, nest: nestRepeat},
	AggregationCount:       {hasSourceField: false, nest: nestSumCounts},
	AggregationThetaSketch: {sketch: true, hasSourceField: true, nest: nestRepeat},
	AggregationSketchCount: {sketch: true, hasSourceField: true, nest: nestMergeSketches},
	AggregationSketchMerge: {sketch: true, hasSourceField: true, nest: nestRepeat},
	AggregationFiltered:    {hasSourceField: true, nest: nestFilterOnce},
	AggregationCardinality: {hasSourceField: false, nest: nestUnsplittable},
	AggregationLongFirst:   {hasSourceField: true, nest: nestRepeat},
	AggregationLongLast:    {hasSourceField: true, nest: nestRepeat},
	AggregationDoubleFirst: {hasSourceField: true, nest: nestRepeat},
	AggregationDoubleLast:  {hasSourceField: true, nest: nestRepeat},
	AggregationStringFirst: {hasSourceField: true, nest: nestRepeat},
	AggregationStringLast:  {hasSourceField: true, nest: nestRepeat},
	AggregationLongAny:     {hasSourceField: true, nest: nestRepeat},
	AggregationDoubleAny:   {hasSourceField: true, nest: nestRepeat},
	AggregationStringAny:   {hasSourceField: true, nest: nestRepeat},
}

// ParseAggregationKind validates a kind name read from configuration.
func ParseAggregationKind(raw string) (AggregationKind, error) {
	kind := AggregationKind(strings.TrimSpace(raw))
	if _, ok := aggregationKindInfoTable[kind]; !ok {
		return "", fmt.Errorf("unknown aggregation type %q", raw)
	}
	return kind, nil
}

// Field is an output column of a plan level: an *Aggregation or a *PostAggregation.
type Field interface {
	Name() string
	isField()
}

// Filter restricts the rows a filtered aggregation sees to those whose
// dimension takes one of Values.
type Filter struct {
	Dimension string   `json:"dimension"`
	Values    []string `json:"values"`
}

func (f Filter) equal(other Filter) bool {
	return f.Dimension == other.Dimension && slices.Equal(f.Values, other.Values)
}

func (f Filter) String() string {
	return fmt.Sprintf("%s in (%s)", f.Dimension, strings.Join(f.Values, ","))
}

// Aggregation is a single aggregated column. Values are immutable; the With*
// methods return modified copies.
type Aggregation struct {
	kind       AggregationKind
	name       string
	fieldName  string
	size       int
	byRow      bool
	dimensions []string
	filter     *Filter
	inner      *Aggregation
}

// AggregationOption configures kind-specific data in NewAggregation.
type AggregationOption func(*Aggregation)

// WithSketchSize sets the size of a sketch aggregation.
func WithSketchSize(size int) AggregationOption {
	return func(a *Aggregation) { a.size = size }
}

// WithByRow makes a cardinality aggregation count distinct rows of all its
// dimensions together instead of each dimension separately.
func WithByRow(byRow bool) AggregationOption {
	return func(a *Aggregation) { a.byRow = byRow }
}

// WithCardinalityDimensions sets the dimensions a cardinality aggregation counts.
func WithCardinalityDimensions(dimensions ...string) AggregationOption {
	return func(a *Aggregation) { a.dimensions = slices.Clone(dimensions) }
}

// NewAggregation builds an aggregation of any kind except filtered, which
// wraps another aggregation and is built by NewFilteredAggregation.
func NewAggregation(kind AggregationKind, name, fieldName string, opts ...AggregationOption) (*Aggregation, error) {
	info, ok := aggregationKindInfoTable[kind]
	if !ok {
		return nil, NewInvalidAggregationError(name, fmt.Sprintf("unknown aggregation type %q", kind))
	}
	if kind == AggregationFiltered {
		return nil, NewInvalidAggregationError(name, "filtered aggregations must be built with NewFilteredAggregation")
	}
	if strings.TrimSpace(name) == "" {
		return nil, NewInvalidAggregationError(name, "aggregation name is required")
	}

	a := &Aggregation{kind: kind, name: name}
	if info.hasSourceField {
		if fieldName == "" {
			return nil, NewInvalidAggregationError(name, fmt.Sprintf("%s aggregation requires a field name", kind))
		}
		a.fieldName = fieldName
	}
	for _, opt := range opts {
		opt(a)
	}

	if info.sketch && a.size <= 0 {
		a.size = DefaultSketchSize
	}
	if kind == AggregationCardinality && len(a.dimensions) == 0 {
		return nil, NewInvalidAggregationError(name, "cardinality aggregation requires at least one dimension")
	}
	return a, nil
}

// MustNewAggregation is NewAggregation for definitions known to be valid.
func MustNewAggregation(kind AggregationKind, name, fieldName string, opts ...AggregationOption) *Aggregation {
	a, err := NewAggregation(kind, name, fieldName, opts...)
	if err != nil {
		panic(err)
	}
	return a
}

// NewFilteredAggregation wraps inner so it only sees rows matching filter.
func NewFilteredAggregation(name string, filter Filter, inner *Aggregation) (*Aggregation, error) {
	if strings.TrimSpace(name) == "" {
		return nil, NewInvalidAggregationError(name, "aggregation name is required")
	}
	if inner == nil {
		return nil, NewInvalidAggregationError(name, "filtered aggregation requires a wrapped aggregation")
	}
	if filter.Dimension == "" {
		return nil, NewInvalidAggregationError(name, "filtered aggregation requires a filter dimension")
	}
	f := Filter{Dimension: filter.Dimension, Values: slices.Clone(filter.Values)}
	return &Aggregation{kind: AggregationFiltered, name: name, filter: &f, inner: inner}, nil
}

func (a *Aggregation) isField() {}

// Name is the output column name, the identity of the aggregation within a plan.
func (a *Aggregation) Name() string { return a.name }

// Kind returns the aggregation kind.
func (a *Aggregation) Kind() AggregationKind { return a.kind }

// FieldName is the column the aggregation reads. It is empty for count and
// cardinality, which have no underlying source column.
func (a *Aggregation) FieldName() string {
	if a.kind == AggregationFiltered {
		return a.inner.FieldName()
	}
	return a.fieldName
}

// Size is the sketch size; zero for non-sketch kinds.
func (a *Aggregation) Size() int { return a.size }

// ByRow reports the cardinality by-row flag.
func (a *Aggregation) ByRow() bool { return a.byRow }

// Dimensions returns the dimensions counted by a cardinality aggregation.
func (a *Aggregation) Dimensions() []string { return slices.Clone(a.dimensions) }

// Filter returns the filter of a filtered aggregation, or nil.
func (a *Aggregation) Filter() *Filter {
	if a.filter == nil {
		return nil
	}
	f := *a.filter
	f.Values = slices.Clone(a.filter.Values)
	return &f
}

// Wrapped returns the aggregation a filtered aggregation wraps, or nil.
func (a *Aggregation) Wrapped() *Aggregation { return a.inner }

// IsSketch reports whether the aggregation produces a distinct-count sketch.
func (a *Aggregation) IsSketch() bool {
	return aggregationKindInfoTable[a.kind].sketch
}

func (a *Aggregation) clone() *Aggregation {
	c := *a
	c.dimensions = slices.Clone(a.dimensions)
	return &c
}

// WithName returns a copy with a different output name.
func (a *Aggregation) WithName(name string) *Aggregation {
	c := a.clone()
	c.name = name
	return c
}

// WithFieldName returns a copy reading a different column. Kinds without a
// source column are returned unchanged.
func (a *Aggregation) WithFieldName(fieldName string) *Aggregation {
	switch {
	case a.kind == AggregationFiltered:
		c := a.clone()
		c.inner = a.inner.WithFieldName(fieldName)
		return c
	case !aggregationKindInfoTable[a.kind].hasSourceField:
		return a
	default:
		c := a.clone()
		c.fieldName = fieldName
		return c
	}
}

// InnerSketch converts a sketch aggregation to the form that can be computed
// on an inner pass and unioned afterwards. Non-sketch aggregations are returned as is.
func (a *Aggregation) InnerSketch() *Aggregation {
	if a.kind != AggregationSketchCount {
		return a
	}
	c := a.clone()
	c.kind = AggregationSketchMerge
	return c
}

// Nest splits the aggregation into the outer and inner aggregations of a
// two-pass computation. A nil result means the aggregation has no part at that level.
func (a *Aggregation) Nest() (outer, inner *Aggregation) {
	switch aggregationKindInfoTable[a.kind].nest {
	case nestSumCounts:
		return &Aggregation{kind: AggregationLongSum, name: a.name, fieldName: a.name}, a
	case nestUnsplittable:
		return a, nil
	case nestFilterOnce:
		wrappedOuter, wrappedInner := a.inner.Nest()
		if wrappedInner == nil {
			return a, nil
		}
		c := a.clone()
		c.inner = wrappedInner
		return wrappedOuter.WithName(a.name).WithFieldName(a.name), c
	case nestMergeSketches:
		return a.WithFieldName(a.name), a.InnerSketch()
	default:
		return a.WithFieldName(a.name), a
	}
}

// Equal reports structural equality.
func (a *Aggregation) Equal(other *Aggregation) bool {
	if a == nil || other == nil {
		return a == other
	}
	if a.kind != other.kind || a.name != other.name || a.fieldName != other.fieldName ||
		a.size != other.size || a.byRow != other.byRow || !slices.Equal(a.dimensions, other.dimensions) {
		return false
	}
	if (a.filter == nil) != (other.filter == nil) {
		return false
	}
	if a.filter != nil && !a.filter.equal(*other.filter) {
		return false
	}
	return a.inner.Equal(other.inner)
}

func (a *Aggregation) String() string {
	switch a.kind {
	case AggregationFiltered:
		return fmt.Sprintf("%s(%s where %s)", a.name, a.inner, a.filter)
	case AggregationCardinality:
		return fmt.Sprintf("%s=cardinality(%s)", a.name, strings.Join(a.dimensions, ","))
	default:
		return fmt.Sprintf("%s=%s(%s)", a.name, a.kind, a.fieldName)
	}
}

type aggregationJSON struct {
	Type       AggregationKind `json:"type"`
	Name       string          `json:"name"`
	FieldName  string          `json:"fieldName,omitempty"`
	Size       int             `json:"size,omitempty"`
	ByRow      bool            `json:"byRow,omitempty"`
	Dimensions []string        `json:"fields,omitempty"`
	Filter     *Filter         `json:"filter,omitempty"`
	Aggregator *Aggregation    `json:"aggregator,omitempty"`
}

// MarshalJSON renders the aggregation in the shape used by the explain tooling.
func (a *Aggregation) MarshalJSON() ([]byte, error) {
	return json.Marshal(aggregationJSON{
		Type:       a.kind,
		Name:       a.name,
		FieldName:  a.fieldName,
		Size:       a.size,
		ByRow:      a.byRow,
		Dimensions: a.dimensions,
		Filter:     a.filter,
		Aggregator: a.inner,
	})
}
