package analytics

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParams_SeedIsExact(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  int64
	}{
		{"json number above 2^53", json.Number("9007199254740993"), 9007199254740993},
		{"max int64 string", " 9223372036854775807 ", math.MaxInt64},
		{"min int64 number", json.Number("-9223372036854775808"), math.MinInt64},
		{"integral float", 42.0, 42},
		{"int", 7, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := parseParams(map[string]any{ParamSeed: tt.value})
			require.NoError(t, err)
			require.NotNil(t, p.seed)
			assert.Equal(t, tt.want, *p.seed)
		})
	}
}

func TestParseParams_SeedOutOfRange(t *testing.T) {
	for _, v := range []any{
		math.Exp2(63),
		-math.Exp2(64),
		math.NaN(),
		math.Inf(1),
		json.Number("9223372036854775808"),
		"-9223372036854775809",
		"12.5",
		true,
	} {
		_, err := parseParams(map[string]any{ParamSeed: v})
		assert.Error(t, err, "%v", v)
	}
}

func TestParseParams_IgnoresUnknownKeys(t *testing.T) {
	p, err := parseParams(map[string]any{"colour": "blue", ParamNoise: "true"})
	require.NoError(t, err)
	require.NotNil(t, p.noise)
	assert.True(t, *p.noise)
	assert.Nil(t, p.seed)
}
