package okr

import (
	"math"

	"engagehub/portal/schema"
)

// Progress maps a raw measurement onto [0,100], rounded to the nearest
// integer. When start == target the range is empty, so the result is 100 if
// the current value has reached the target and 0 otherwise.
func Progress(current, start, target float64) float64 {
	if start == target {
		if current >= target {
			return 100
		}
		return 0
	}

	p := (current - start) / (target - start) * 100
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return math.Round(p)
}

// KeyResultProgress derives the progress of a key result from its measurement.
// Boolean key results are all-or-nothing, every other measurement type uses
// the numeric range.
func KeyResultProgress(kr *schema.KeyResult) float64 {
	if kr.MeasurementType == schema.MeasureBoolean {
		if kr.BooleanValue {
			return 100
		}
		return 0
	}
	return Progress(kr.CurrentValue, kr.StartValue, kr.TargetValue)
}

// AggregateProgress combines key result progress into an objective level
// percentage using the objective's calculation method.
//
// weighted_sum divides the weighted total by the total weight, weighted_avg
// takes the plain mean of the weighted values. The two agree exactly when the
// weights sum to 1; both are kept as separately selectable policies.
func AggregateProgress(method string, keyResults []schema.KeyResult) float64 {
	if len(keyResults) == 0 {
		return 0
	}

	var weightedTotal, totalWeight float64
	for _, kr := range keyResults {
		weightedTotal += kr.Progress * kr.Weight
		totalWeight += kr.Weight
	}

	switch method {
	case schema.WeightedAvg:
		return weightedTotal / float64(len(keyResults))
	default: // weighted_sum
		if totalWeight == 0 {
			return 0
		}
		return weightedTotal / totalWeight
	}
}
