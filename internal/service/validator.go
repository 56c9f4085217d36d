package service

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/sb-diagnostic-server/internal/domain"
)

// RequiredFields lists the request fields that must be present, in the
// order they are checked.
var RequiredFields = []string{
	"age",
	"gender",
	"leukocyte_count",
	"protein",
	"bacterial_count",
	"ph",
	"specific_gravity",
}

var (
	floatPrefix = regexp.MustCompile(`^[+-]?(Infinity|(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?)`)
	intPrefix   = regexp.MustCompile(`^[+-]?\d+`)
)

// InputValidator checks a raw diagnosis request and normalizes it into the
// model's feature set.
type InputValidator struct {
	strictNumeric bool
}

// NewInputValidator creates a validator. With strictNumeric, values that
// are present but do not coerce to a finite number are rejected; otherwise
// they are passed to the model as NaN.
func NewInputValidator(strictNumeric bool) *InputValidator {
	return &InputValidator{strictNumeric: strictNumeric}
}

// Validate fails on the first missing required field and otherwise returns
// the normalized features. A value is present unless it is absent or null;
// 0 and "" count as present.
func (v *InputValidator) Validate(raw map[string]interface{}) (domain.Features, error) {
	for _, field := range RequiredFields {
		if val, ok := raw[field]; !ok || val == nil {
			return domain.Features{}, domain.NewMissingFieldError(field)
		}
	}

	f := domain.Features{
		Age:             coerceInt(raw["age"]),
		LeukocyteCount:  coerceFloat(raw["leukocyte_count"]),
		Protein:         coerceFloat(raw["protein"]),
		BacterialCount:  coerceFloat(raw["bacterial_count"]),
		PH:              coerceFloat(raw["ph"]),
		SpecificGravity: coerceFloat(raw["specific_gravity"]),
	}
	if g, ok := raw["gender"].(string); ok && g == "Male" {
		f.Gender = 1
	}
	if truthy(raw["nitrite"]) {
		f.Nitrite = 1
	}

	if v.strictNumeric {
		numeric := []struct {
			field string
			value float64
		}{
			{"age", f.Age},
			{"leukocyte_count", f.LeukocyteCount},
			{"protein", f.Protein},
			{"bacterial_count", f.BacterialCount},
			{"ph", f.PH},
			{"specific_gravity", f.SpecificGravity},
		}
		for _, n := range numeric {
			if math.IsNaN(n.value) || math.IsInf(n.value, 0) {
				return domain.Features{}, domain.NewValidationError(n.field,
					fmt.Sprintf("Field %s must be numeric", n.field), raw[n.field])
			}
		}
	}

	return f, nil
}

// coerceFloat parses the leading decimal literal of a value; anything that
// has none becomes NaN.
func coerceFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		m := floatPrefix.FindString(strings.TrimSpace(t))
		if m == "" {
			return math.NaN()
		}
		switch m {
		case "Infinity", "+Infinity":
			return math.Inf(1)
		case "-Infinity":
			return math.Inf(-1)
		}
		// The prefix is always a valid literal; on overflow ParseFloat
		// reports an error and returns ±Inf, which is what we want.
		n, _ := strconv.ParseFloat(m, 64)
		return n
	default:
		return math.NaN()
	}
}

// coerceInt parses the leading integer of a value; fractional parts are
// dropped and anything without digits becomes NaN.
func coerceInt(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return math.NaN()
		}
		return math.Trunc(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		m := intPrefix.FindString(strings.TrimSpace(t))
		if m == "" {
			return math.NaN()
		}
		n, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return math.NaN()
		}
		return n
	default:
		return math.NaN()
	}
}

// truthy follows loose boolean semantics: false, 0, NaN, "" and null are
// false, everything else is true.
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case int:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}
