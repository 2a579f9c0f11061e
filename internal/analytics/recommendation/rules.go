package recommendation

import (
	"fmt"

	"github.com/kubilitics/kubilitics-forecast/internal/analytics/forecasting"
)

// DefaultRules returns the built-in rules in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "demand_growth", Evaluate: demandGrowth},
		{Name: "demand_decline", Evaluate: demandDecline},
		{Name: "capacity_bottleneck", Evaluate: capacityBottleneck},
		{Name: "cost_growth", Evaluate: costGrowth},
		{Name: "delivery_below_target", Evaluate: deliveryBelowTarget},
		{Name: "risk_level", Evaluate: riskLevel},
		{Name: "emissions_growth", Evaluate: emissionsGrowth},
		{Name: "demand_cost_growth", Evaluate: demandCostGrowth},
	}
}

func growing(f Forecasts, d forecasting.Domain, threshold float64) (forecasting.Series, bool) {
	s, ok := f[d]
	if !ok {
		return s, false
	}
	return s, s.TrendRelative > threshold
}

func demandGrowth(f Forecasts, t Thresholds) []Recommendation {
	s, ok := growing(f, forecasting.Demand, t.DemandGrowth)
	if !ok {
		return nil
	}
	return []Recommendation{{
		Type:     TypeCapacity,
		Priority: PriorityHigh,
		Action:   "Add fleet and warehouse capacity ahead of rising transport demand",
		Impact:   fmt.Sprintf("Demand grows %.1f%% per period from %.0f requests", s.TrendRelative*100, s.Baseline),
		Timeline: "2-4 weeks",
		Domain:   forecasting.Demand,
		Evidence: map[string]float64{"trendRelative": s.TrendRelative, "baseline": s.Baseline},
	}}
}

func demandDecline(f Forecasts, t Thresholds) []Recommendation {
	s, ok := f[forecasting.Demand]
	if !ok || s.TrendRelative >= -t.DemandDecline {
		return nil
	}
	return []Recommendation{{
		Type:     TypeOptimization,
		Priority: PriorityMedium,
		Action:   "Consolidate routes and release idle capacity as demand falls",
		Impact:   fmt.Sprintf("Demand declines %.1f%% per period", -s.TrendRelative*100),
		Timeline: "1-2 months",
		Domain:   forecasting.Demand,
		Evidence: map[string]float64{"trendRelative": s.TrendRelative},
	}}
}

// capacityBottleneck emits exactly one recommendation: immediate scaling when
// bottlenecks exceed the count threshold, a capacity review otherwise.
func capacityBottleneck(f Forecasts, t Thresholds) []Recommendation {
	s, ok := f[forecasting.Capacity]
	if !ok {
		return nil
	}
	n := s.Levels()[forecasting.LevelBottleneck]
	evidence := map[string]float64{"bottlenecks": float64(n), "meanUtilization": s.MeanPredicted()}
	switch {
	case n > t.BottleneckCount:
		return []Recommendation{{
			Type:     TypeImmediate,
			Priority: PriorityHigh,
			Action:   "Scale capacity now: add vehicles or shifts for the bottleneck periods",
			Impact:   fmt.Sprintf("%d forecast periods exceed safe utilization", n),
			Timeline: "immediate",
			Domain:   forecasting.Capacity,
			Evidence: evidence,
		}}
	case n >= 1:
		return []Recommendation{{
			Type:     TypeCapacity,
			Priority: PriorityMedium,
			Action:   "Review capacity planning for the flagged periods",
			Impact:   fmt.Sprintf("%d forecast periods near capacity limits", n),
			Timeline: "1-2 weeks",
			Domain:   forecasting.Capacity,
			Evidence: evidence,
		}}
	}
	return nil
}

func costGrowth(f Forecasts, t Thresholds) []Recommendation {
	s, ok := growing(f, forecasting.Cost, t.CostGrowth)
	if !ok {
		return nil
	}
	return []Recommendation{{
		Type:     TypeCost,
		Priority: PriorityHigh,
		Action:   "Renegotiate carrier rates and audit order costs",
		Impact:   fmt.Sprintf("Average order cost rises %.1f%% per period", s.TrendRelative*100),
		Timeline: "1 month",
		Domain:   forecasting.Cost,
		Evidence: map[string]float64{"trendRelative": s.TrendRelative, "baseline": s.Baseline},
	}}
}

func deliveryBelowTarget(f Forecasts, t Thresholds) []Recommendation {
	s, ok := f[forecasting.Delivery]
	if !ok || len(s.Points) == 0 {
		return nil
	}
	mean := s.MeanPredicted()
	if mean >= t.DeliveryTarget {
		return nil
	}
	return []Recommendation{{
		Type:     TypePerformance,
		Priority: PriorityHigh,
		Action:   "Investigate late deliveries and adjust route scheduling",
		Impact:   fmt.Sprintf("Forecast on-time rate %.1f%% is below the %.0f%% target", mean*100, t.DeliveryTarget*100),
		Timeline: "2 weeks",
		Domain:   forecasting.Delivery,
		Evidence: map[string]float64{"onTimeRate": mean, "target": t.DeliveryTarget},
	}}
}

func riskLevel(f Forecasts, _ Thresholds) []Recommendation {
	s, ok := f[forecasting.Risk]
	if !ok {
		return nil
	}
	levels := s.Levels()
	evidence := map[string]float64{"meanExceptionRate": s.MeanPredicted()}
	if levels[forecasting.LevelHigh] > 0 {
		return []Recommendation{{
			Type:     TypeRisk,
			Priority: PriorityHigh,
			Action:   "Activate contingency carriers and tighten shipment monitoring",
			Impact:   fmt.Sprintf("%d forecast periods at high exception risk", levels[forecasting.LevelHigh]),
			Timeline: "immediate",
			Domain:   forecasting.Risk,
			Evidence: evidence,
		}}
	}
	if levels[forecasting.LevelMedium] > 0 {
		return []Recommendation{{
			Type:     TypeRisk,
			Priority: PriorityMedium,
			Action:   "Review exception causes with carriers",
			Impact:   fmt.Sprintf("%d forecast periods at elevated exception risk", levels[forecasting.LevelMedium]),
			Timeline: "2-4 weeks",
			Domain:   forecasting.Risk,
			Evidence: evidence,
		}}
	}
	return nil
}

func emissionsGrowth(f Forecasts, t Thresholds) []Recommendation {
	s, ok := growing(f, forecasting.Sustainability, t.EmissionsGrowth)
	if !ok {
		return nil
	}
	return []Recommendation{{
		Type:     TypeSustainability,
		Priority: PriorityMedium,
		Action:   "Shift volume to lower-emission modes and optimize load factors",
		Impact:   fmt.Sprintf("CO2 emissions rise %.1f%% per period", s.TrendRelative*100),
		Timeline: "3 months",
		Domain:   forecasting.Sustainability,
		Evidence: map[string]float64{"trendRelative": s.TrendRelative, "baselineKg": s.Baseline},
	}}
}

func demandCostGrowth(f Forecasts, t Thresholds) []Recommendation {
	demand, demandUp := growing(f, forecasting.Demand, t.DemandGrowth)
	cost, costUp := growing(f, forecasting.Cost, t.CostGrowth)
	if !demandUp || !costUp {
		return nil
	}
	return []Recommendation{{
		Type:     TypeStrategic,
		Priority: PriorityMedium,
		Action:   "Plan long-term carrier contracts to lock in rates while volume grows",
		Impact:   "Demand and unit cost are rising together",
		Timeline: "quarter",
		Evidence: map[string]float64{
			"demandTrendRelative": demand.TrendRelative,
			"costTrendRelative":   cost.TrendRelative,
		},
	}}
}
