package solve

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/copyleftdev/anneal/internal/errors"
	"github.com/copyleftdev/anneal/internal/optimization/sampler"
)

// Defaults applied to omitted request fields.
const (
	DefaultSolver  = sampler.SA
	DefaultPenalty = 5.0
)

// Options are the tuning knobs shared by every problem family.
type Options struct {
	Solver    string `json:"solver,omitempty" yaml:"solver,omitempty"`
	NumReads  *int   `json:"num_reads,omitempty" yaml:"num_reads,omitempty" validate:"omitempty,gte=1"`
	UseGreedy bool   `json:"use_greedy,omitempty" yaml:"use_greedy,omitempty"`
	Seed      int64  `json:"seed,omitempty" yaml:"seed,omitempty"`
	TimeoutMS int    `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty" validate:"gte=0"`
}

// AssignmentRequest asks for a one-to-one worker/job assignment of minimum
// total cost.
type AssignmentRequest struct {
	Costs      [][]float64 `json:"costs" yaml:"costs"`
	PenaltyRow *float64    `json:"penalty_row,omitempty" yaml:"penalty_row,omitempty" validate:"omitempty,gt=0"`
	PenaltyCol *float64    `json:"penalty_col,omitempty" yaml:"penalty_col,omitempty" validate:"omitempty,gt=0"`
	Options    `yaml:",inline"`
}

// KnapsackRequest asks for the most valuable item subset within capacity.
// Weights and capacity are whole numbers; they are accepted as JSON numbers
// so that 3.0 is as good as 3.
type KnapsackRequest struct {
	Weights  []float64 `json:"weights" yaml:"weights"`
	Values   []float64 `json:"values" yaml:"values"`
	Capacity float64   `json:"capacity" yaml:"capacity"`
	Penalty  *float64  `json:"penalty,omitempty" yaml:"penalty,omitempty" validate:"omitempty,gt=0"`
	Options  `yaml:",inline"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their wire name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// checkStruct runs the tag rules and converts the first violation into an
// InvalidParameter error naming the field.
func checkStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !apperrors.As(err, &verrs) || len(verrs) == 0 {
		return apperrors.Wrap(err, "request validation failed")
	}
	fe := verrs[0]
	return apperrors.InvalidParameter(fe.Field(), "%s must satisfy %s%s, got %v",
		fe.Field(), fe.Tag(), paramSuffix(fe.Param()), fe.Value())
}

func paramSuffix(p string) string {
	if p == "" {
		return ""
	}
	return "=" + p
}

func penaltyOr(p *float64) float64 {
	if p == nil {
		return DefaultPenalty
	}
	return *p
}

// wholeNumber converts v to an int, rejecting fractions and non-finite values.
func wholeNumber(field string, v float64) (int, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) || math.Abs(v) > 1<<53 {
		return 0, apperrors.InvalidParameter(field, "%s must be a whole number, got %v", field, v)
	}
	return int(v), nil
}

func wholeNumbers(field string, vs []float64) ([]int, error) {
	out := make([]int, len(vs))
	for k, v := range vs {
		n, err := wholeNumber(fmt.Sprintf("%s[%d]", field, k), v)
		if err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, nil
}
