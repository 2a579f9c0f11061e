// Package recommendation turns forecast series into prioritized action items.
//
// Rules are plain threshold comparisons over the forecasts of one or two
// domains. Each rule is independent and only fires when the domains it reads
// were forecast. Output order is rule order unless priority sorting is enabled.
package recommendation

import (
	"sort"

	"github.com/kubilitics/kubilitics-forecast/internal/analytics/forecasting"
)

// Type categorizes a recommendation.
type Type string

const (
	TypeCapacity       Type = "capacity"
	TypeOptimization   Type = "optimization"
	TypeImmediate      Type = "immediate"
	TypeCost           Type = "cost"
	TypePerformance    Type = "performance"
	TypeRisk           Type = "risk"
	TypeSustainability Type = "sustainability"
	TypeStrategic      Type = "strategic"
)

// Priority orders recommendations by urgency.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// Recommendation is one action item derived from the forecasts.
type Recommendation struct {
	Type     Type               `json:"type"`
	Priority Priority           `json:"priority"`
	Action   string             `json:"action"`
	Impact   string             `json:"impact"`
	Timeline string             `json:"timeline"`
	Domain   forecasting.Domain `json:"domain,omitempty"`
	Rule     string             `json:"rule"`
	Evidence map[string]float64 `json:"evidence,omitempty"`
}

// Forecasts holds the series of every forecast domain in one report.
type Forecasts map[forecasting.Domain]forecasting.Series

// Thresholds parameterize the rules. Growth thresholds are relative slopes:
// change per period as a fraction of the baseline.
type Thresholds struct {
	DemandGrowth    float64 `json:"demandGrowth" yaml:"demand_growth" mapstructure:"demand_growth"`
	DemandDecline   float64 `json:"demandDecline" yaml:"demand_decline" mapstructure:"demand_decline"`
	BottleneckCount int     `json:"bottleneckCount" yaml:"bottleneck_count" mapstructure:"bottleneck_count"`
	CostGrowth      float64 `json:"costGrowth" yaml:"cost_growth" mapstructure:"cost_growth"`
	DeliveryTarget  float64 `json:"deliveryTarget" yaml:"delivery_target" mapstructure:"delivery_target"`
	EmissionsGrowth float64 `json:"emissionsGrowth" yaml:"emissions_growth" mapstructure:"emissions_growth"`
}

// DefaultThresholds returns the production rule thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DemandGrowth:    0.05,
		DemandDecline:   0.05,
		BottleneckCount: 2,
		CostGrowth:      0.03,
		DeliveryTarget:  0.9,
		EmissionsGrowth: 0.02,
	}
}

// Rule is one named, independent recommendation check.
type Rule struct {
	Name     string
	Evaluate func(Forecasts, Thresholds) []Recommendation
}

// Engine evaluates an ordered rule list.
type Engine struct {
	thresholds     Thresholds
	rules          []Rule
	sortByPriority bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithPrioritySort orders output high → medium → low, keeping rule order within a priority.
func WithPrioritySort(enabled bool) Option {
	return func(e *Engine) { e.sortByPriority = enabled }
}

// WithRules replaces the default rule list.
func WithRules(rules ...Rule) Option {
	return func(e *Engine) { e.rules = rules }
}

// NewEngine creates an engine with the default rules.
func NewEngine(t Thresholds, opts ...Option) *Engine {
	e := &Engine{thresholds: t, rules: DefaultRules()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Thresholds returns the engine's thresholds.
func (e *Engine) Thresholds() Thresholds { return e.thresholds }

// Evaluate runs every rule in order. It never returns nil.
func (e *Engine) Evaluate(f Forecasts) []Recommendation {
	out := make([]Recommendation, 0)
	for _, rule := range e.rules {
		for _, rec := range rule.Evaluate(f, e.thresholds) {
			rec.Rule = rule.Name
			out = append(out, rec)
		}
	}
	if e.sortByPriority {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Priority.rank() < out[j].Priority.rank()
		})
	}
	return out
}
