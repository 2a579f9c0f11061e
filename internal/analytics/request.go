package analytics

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kubilitics/kubilitics-forecast/internal/analytics/forecasting"
	"github.com/kubilitics/kubilitics-forecast/internal/analytics/recommendation"
	"github.com/kubilitics/kubilitics-forecast/internal/analytics/scoring"
)

// Request parameter keys.
const (
	ParamCapacityThreshold = "capacityThreshold"
	ParamNoise             = "noise"
	ParamSeed              = "seed"
)

// Request is the input of one analytics run.
type Request struct {
	TenantID   string         `json:"tenantId" yaml:"tenantId"`
	Domains    []string       `json:"domains" yaml:"domains"`
	Horizon    int            `json:"horizon" yaml:"horizon"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Report is the complete result of one analytics run.
type Report struct {
	ID              string                                    `json:"id"`
	TenantID        string                                    `json:"tenantId"`
	Horizon         int                                       `json:"horizon"`
	Domains         []forecasting.Domain                      `json:"domains"`
	Predictions     map[forecasting.Domain]forecasting.Series `json:"predictions"`
	ModelAccuracy   scoring.ModelAccuracy                     `json:"modelAccuracy"`
	Recommendations []recommendation.Recommendation           `json:"recommendations"`
	DataQuality     scoring.DataQuality                       `json:"dataQuality"`
	Confidence      float64                                   `json:"confidence"`
	RecordsAnalyzed int                                       `json:"recordsAnalyzed"`
	LastUpdated     time.Time                                 `json:"lastUpdated"`
}

// params is the validated form of Request.Parameters.
type params struct {
	capacityThreshold float64
	hasCapacity       bool
	noise             *bool
	seed              *int64
}

func parseParams(raw map[string]any) (params, error) {
	var p params
	for key, value := range raw {
		switch key {
		case ParamCapacityThreshold:
			v, err := floatParam(value)
			if err != nil || v <= 0 || v > 1.5 {
				return p, fmt.Errorf("%s must be a number in (0, 1.5], got %v", key, value)
			}
			p.capacityThreshold, p.hasCapacity = v, true
		case ParamNoise:
			v, err := boolParam(value)
			if err != nil {
				return p, fmt.Errorf("%s must be a boolean, got %v", key, value)
			}
			p.noise = &v
		case ParamSeed:
			seed, err := intParam(value)
			if err != nil {
				return p, fmt.Errorf("%s must be a 64-bit integer, got %v", key, value)
			}
			p.seed = &seed
		}
	}
	return p, nil
}

func floatParam(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

// intParam accepts integers exactly. Decoded JSON numbers and strings are
// parsed as integers, never through float64; a float64 must be integral and
// inside the int64 range.
func intParam(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case json.Number:
		return strconv.ParseInt(x.String(), 10, 64)
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	case float64:
		// 2^63 is exact in float64; the int64 range is [-2^63, 2^63).
		if x != math.Trunc(x) || x < -(1<<63) || x >= 1<<63 {
			return 0, fmt.Errorf("%v is not an int64", x)
		}
		return int64(x), nil
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

func boolParam(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(x))
	default:
		return false, fmt.Errorf("unsupported type %T", v)
	}
}
