package internal

import (
	"fmt"
	"slices"
	"time"

	"github.com/lychee-technology/strata"
)

// CatalogDocument is the decoded content of the catalog configuration files.
// Several files are concatenated into one document.
type CatalogDocument struct {
	Dimensions     []DimensionDocument     `json:"dimensions,omitempty"`
	Metrics        []MetricDocument        `json:"metrics,omitempty"`
	PhysicalTables []PhysicalTableDocument `json:"physicalTables,omitempty"`
	LogicalTables  []LogicalTableDocument  `json:"logicalTables,omitempty"`
}

type DimensionDocument struct {
	Name        string `json:"name"`
	LongName    string `json:"longName,omitempty"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

type MetricDocument struct {
	Name        string       `json:"name"`
	LongName    string       `json:"longName,omitempty"`
	Description string       `json:"description,omitempty"`
	Category    string       `json:"category,omitempty"`
	Plan        PlanDocument `json:"plan"`
}

// PlanDocument describes one level of a metric query plan.
type PlanDocument struct {
	Aggregations     []AggregationDocument     `json:"aggregations"`
	PostAggregations []PostAggregationDocument `json:"postAggregations,omitempty"`
	Dimensions       []string                  `json:"dimensions,omitempty"`
	Grain            string                    `json:"grain,omitempty"`
	Nested           *PlanDocument             `json:"nested,omitempty"`
}

type AggregationDocument struct {
	Kind       string               `json:"kind"`
	Name       string               `json:"name"`
	Field      string               `json:"field,omitempty"`
	Size       int                  `json:"size,omitempty"`
	ByRow      bool                 `json:"byRow,omitempty"`
	Dimensions []string             `json:"dimensions,omitempty"`
	Filter     *FilterDocument      `json:"filter,omitempty"`
	Wrapped    *AggregationDocument `json:"wrapped,omitempty"`
}

type FilterDocument struct {
	Dimension string   `json:"dimension"`
	Values    []string `json:"values"`
}

// PostAggregationDocument is either a reference to a field of the same plan
// level (Ref) or a post-aggregation definition.
type PostAggregationDocument struct {
	Ref      string                    `json:"ref,omitempty"`
	Kind     string                    `json:"kind,omitempty"`
	Name     string                    `json:"name,omitempty"`
	Function string                    `json:"function,omitempty"`
	Field    string                    `json:"field,omitempty"`
	Fields   []PostAggregationDocument `json:"fields,omitempty"`
	Value    float64                   `json:"value,omitempty"`
}

type PhysicalTableDocument struct {
	Name         string                  `json:"name"`
	Type         string                  `json:"type"`
	Grain        string                  `json:"grain,omitempty"`
	Metrics      []string                `json:"metrics,omitempty"`
	Dimensions   []DimensionConfig       `json:"dimensions,omitempty"`
	Partitions   []PartitionRuleDocument `json:"partitions,omitempty"`
	Dependencies []string                `json:"dependencies,omitempty"`
}

type PartitionRuleDocument struct {
	Table         string              `json:"table"`
	Filter        map[string][]string `json:"filter,omitempty"`
	AvailableFrom string              `json:"availableFrom,omitempty"`
}

type LogicalTableDocument struct {
	Name           string   `json:"name"`
	Grains         []string `json:"grains"`
	PhysicalTables []string `json:"physicalTables"`
	Metrics        []string `json:"metrics,omitempty"`
}

// Append adds the content of other to d.
func (d *CatalogDocument) Append(other CatalogDocument) {
	d.Dimensions = append(d.Dimensions, other.Dimensions...)
	d.Metrics = append(d.Metrics, other.Metrics...)
	d.PhysicalTables = append(d.PhysicalTables, other.PhysicalTables...)
	d.LogicalTables = append(d.LogicalTables, other.LogicalTables...)
}

func parseOptionalGrain(raw string) (strata.TimeGrain, error) {
	if raw == "" {
		return "", nil
	}
	return strata.ParseTimeGrain(raw)
}

// BuildDimension converts the document into a dimension.
func (d DimensionDocument) BuildDimension() *Dimension {
	return &Dimension{APIName: d.Name, LongName: d.LongName, Description: d.Description, Category: d.Category}
}

// BuildMetric converts the document into a logical metric.
func (d MetricDocument) BuildMetric() (*strata.LogicalMetric, error) {
	plan, err := d.Plan.build()
	if err != nil {
		return nil, fmt.Errorf("metric %s: %w", d.Name, err)
	}
	return &strata.LogicalMetric{
		Name:        d.Name,
		LongName:    d.LongName,
		Description: d.Description,
		Category:    d.Category,
		Plan:        plan,
	}, nil
}

func (d PlanDocument) build() (*strata.MetricQueryPlan, error) {
	var opts []strata.PlanOption
	if d.Nested != nil {
		nested, err := d.Nested.build()
		if err != nil {
			return nil, fmt.Errorf("nested plan: %w", err)
		}
		opts = append(opts, strata.PlanNested(nested))
	}
	grain, err := parseOptionalGrain(d.Grain)
	if err != nil {
		return nil, err
	}
	if !grain.IsZero() {
		opts = append(opts, strata.PlanTimeGrain(grain))
	}
	if len(d.Dimensions) > 0 {
		opts = append(opts, strata.PlanDimensions(d.Dimensions...))
	}

	fields := make(map[string]strata.Field)
	aggs := make([]*strata.Aggregation, 0, len(d.Aggregations))
	for _, ad := range d.Aggregations {
		agg, err := ad.build()
		if err != nil {
			return nil, err
		}
		aggs = append(aggs, agg)
		fields[agg.Name()] = agg
	}

	posts := make([]*strata.PostAggregation, 0, len(d.PostAggregations))
	for _, pd := range d.PostAggregations {
		if pd.Ref != "" {
			return nil, fmt.Errorf("top-level post-aggregation must be a definition, got reference %q", pd.Ref)
		}
		post, err := pd.buildPostAggregation(fields)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
		fields[post.Name()] = post
	}
	plan, err := strata.NewMetricQueryPlan(aggs, posts, opts...)
	if err != nil {
		return nil, err
	}
	if err := plan.ValidateTimeGrain(); err != nil {
		return nil, err
	}
	return plan, nil
}

func (d AggregationDocument) build() (*strata.Aggregation, error) {
	kind, err := strata.ParseAggregationKind(d.Kind)
	if err != nil {
		return nil, strata.NewInvalidAggregationError(d.Name, err.Error())
	}
	if kind == strata.AggregationFiltered {
		if d.Wrapped == nil || d.Filter == nil {
			return nil, strata.NewInvalidAggregationError(d.Name, "filtered aggregation needs filter and wrapped")
		}
		inner, err := d.Wrapped.build()
		if err != nil {
			return nil, err
		}
		return strata.NewFilteredAggregation(d.Name, strata.Filter{Dimension: d.Filter.Dimension, Values: slices.Clone(d.Filter.Values)}, inner)
	}

	var opts []strata.AggregationOption
	if d.Size > 0 {
		opts = append(opts, strata.WithSketchSize(d.Size))
	}
	if d.ByRow {
		opts = append(opts, strata.WithByRow(true))
	}
	if len(d.Dimensions) > 0 {
		opts = append(opts, strata.WithCardinalityDimensions(d.Dimensions...))
	}
	return strata.NewAggregation(kind, d.Name, d.Field, opts...)
}

func (d PostAggregationDocument) build(fields map[string]strata.Field) (strata.Field, error) {
	post, err := d.buildPostAggregation(fields)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return fields[d.Ref], nil
	}
	return post, nil
}

// buildPostAggregation returns nil without error for a resolved reference.
func (d PostAggregationDocument) buildPostAggregation(fields map[string]strata.Field) (*strata.PostAggregation, error) {
	if d.Ref != "" {
		if _, ok := fields[d.Ref]; !ok {
			return nil, strata.NewFieldNotFoundError(d.Ref)
		}
		return nil, nil
	}

	children := make([]strata.Field, 0, len(d.Fields))
	for _, child := range d.Fields {
		f, err := child.build(fields)
		if err != nil {
			return nil, err
		}
		children = append(children, f)
	}

	switch strata.PostAggregationKind(d.Kind) {
	case strata.PostAggregationArithmetic:
		return strata.NewArithmeticPostAggregation(d.Name, strata.ArithmeticFunction(d.Function), children...)
	case strata.PostAggregationFieldAccess:
		target, ok := fields[d.Field]
		if !ok {
			return nil, strata.NewFieldNotFoundError(d.Field)
		}
		return strata.NewFieldAccessPostAggregation(d.Name, target)
	case strata.PostAggregationConstant:
		return strata.NewConstantPostAggregation(d.Name, d.Value)
	case strata.PostAggregationSketchEstimate:
		if len(children) != 1 {
			return nil, strata.NewInvalidAggregationError(d.Name, "sketch estimate takes exactly one field")
		}
		return strata.NewSketchEstimatePostAggregation(d.Name, children[0])
	case strata.PostAggregationSketchSetOperation:
		return strata.NewSketchSetOperationPostAggregation(d.Name, strata.SketchSetFunction(d.Function), children...)
	default:
		return nil, strata.NewInvalidAggregationError(d.Name, fmt.Sprintf("unknown post-aggregation kind %q", d.Kind))
	}
}

// BuildDefinition converts the document into a table definition.
func (d PhysicalTableDocument) BuildDefinition() (TableDefinition, error) {
	grain, err := parseOptionalGrain(d.Grain)
	if err != nil {
		return nil, strata.NewInvalidConfigError(d.Name, err.Error()).WithTable(d.Name)
	}
	var def TableDefinition
	switch TableKind(d.Type) {
	case TableKindLeaf:
		def, err = NewLeafTableDefinition(d.Name, grain, d.Metrics, d.Dimensions)
	case TableKindPartition:
		rules := make([]PartitionRule, 0, len(d.Partitions))
		for _, p := range d.Partitions {
			rule := PartitionRule{MemberTable: p.Table, DimensionValueFilter: p.Filter}
			if p.AvailableFrom != "" {
				mark, err := parseMark(p.AvailableFrom)
				if err != nil {
					return nil, strata.NewInvalidConfigError(d.Name, err.Error()).WithTable(d.Name).WithField(p.Table)
				}
				rule.AvailableFrom = mark
			}
			rules = append(rules, rule)
		}
		def, err = NewPartitionTableDefinition(d.Name, grain, d.Metrics, d.Dimensions, rules)
	case TableKindMetricUnion:
		def, err = NewMetricUnionTableDefinition(d.Name, grain, d.Metrics, d.Dimensions, d.Dependencies)
	default:
		return nil, strata.NewInvalidConfigError(d.Name, fmt.Sprintf("unknown physical table type %q", d.Type)).WithTable(d.Name)
	}
	if err != nil {
		return nil, err
	}
	return def, nil
}

func parseMark(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid availableFrom %q", raw)
	}
	return t.UTC(), nil
}
