package tools

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Fee schedule in USD.
const (
	MembershipBase    = 125.0
	EventDayRate      = 45.0
	ScholarshipFactor = 0.6
)

// FeeEstimate is the result of calc.fees.
type FeeEstimate struct {
	Estimate    float64  `json:"estimate"`
	Currency    string   `json:"currency"`
	Description string   `json:"description"`
	Assumptions []string `json:"assumptions"`
}

// CalcFees estimates membership, event or consultation fees. Arguments:
// {"type": "membership"|"event"|..., "params": {...}}.
type CalcFees struct{}

func (CalcFees) Name() string { return "calc.fees" }

func (CalcFees) Run(_ context.Context, args map[string]any) (any, error) {
	params := object(args, "params")

	switch strings.ToLower(str(args, "type")) {
	case "membership":
		months, err := number(params, "duration", 12)
		if err != nil {
			return nil, err
		}
		if months <= 0 {
			return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidArgs)
		}
		scholarship := truthy(params, "scholarship")
		estimate := MembershipBase * math.Ceil(months/12)
		assumption := "Standard rate"
		if scholarship {
			estimate *= ScholarshipFactor
			assumption = "Scholarship support applied"
		}
		return FeeEstimate{
			Estimate:    estimate,
			Currency:    "USD",
			Description: "Estimated annual membership dues",
			Assumptions: []string{fmt.Sprintf("Duration: %g months", months), assumption},
		}, nil

	case "event":
		attendees, err := number(params, "attendees", 1)
		if err != nil {
			return nil, err
		}
		days, err := number(params, "days", 1)
		if err != nil {
			return nil, err
		}
		if attendees < 0 || days < 0 {
			return nil, fmt.Errorf("%w: attendees and days must not be negative", ErrInvalidArgs)
		}
		return FeeEstimate{
			Estimate:    attendees * days * EventDayRate,
			Currency:    "USD",
			Description: "Estimated workshop or event facilitation fees",
			Assumptions: []string{fmt.Sprintf("%g attendees", attendees), fmt.Sprintf("%g day(s)", days)},
		}, nil

	default:
		return FeeEstimate{
			Estimate:    MembershipBase,
			Currency:    "USD",
			Description: "Baseline consultation fee",
			Assumptions: []string{"Contact our team for an exact quote."},
		}, nil
	}
}
