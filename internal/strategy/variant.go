package strategy

import (
	"fmt"
	"strings"
)

// ReferenceField 决定突破线的基准价与区间来源。
type ReferenceField string

// TriggerField 决定入场条件比较的是哪个价格。
type TriggerField string

// ExitPolicy 决定持仓的离场方式。
type ExitPolicy string

const (
	// ReferenceOpen pairs the current bar's open with the prior bar's range.
	ReferenceOpen ReferenceField = "open"
	// ReferenceClose pairs the current bar's close with its own range.
	ReferenceClose ReferenceField = "close"

	TriggerHigh  TriggerField = "high"
	TriggerClose TriggerField = "close"

	// ExitTrailing holds while the breakout line stays above the trailing
	// close average and sells at the current bar's close once it breaks.
	ExitTrailing ExitPolicy = "trailing"
	// ExitNextOpen sells unconditionally at the open of the first bar that
	// closes after the entry bar.
	ExitNextOpen ExitPolicy = "next_open"
)

// Variant is the full breakout parameter set. Entry, watch and exit all read
// from the same descriptor so live and backtest can never diverge on policy.
type Variant struct {
	Ratio          float64
	TrailingWindow int
	Reference      ReferenceField
	Trigger        TriggerField
	Exit           ExitPolicy
}

// DefaultVariant 是默认参数组合：open 基准、high 触发、trailing 离场。
func DefaultVariant() Variant {
	return Variant{
		Ratio:          0.5,
		TrailingWindow: 5,
		Reference:      ReferenceOpen,
		Trigger:        TriggerHigh,
		Exit:           ExitTrailing,
	}
}

// ParseVariant builds a Variant from config strings, rejecting unknown values.
func ParseVariant(ratio float64, window int, reference, trigger, exit string) (Variant, error) {
	v := DefaultVariant()
	if ratio > 0 {
		v.Ratio = ratio
	}
	if window > 0 {
		v.TrailingWindow = window
	}
	switch ReferenceField(strings.ToLower(strings.TrimSpace(reference))) {
	case ReferenceOpen, "":
		v.Reference = ReferenceOpen
	case ReferenceClose:
		v.Reference = ReferenceClose
	default:
		return Variant{}, fmt.Errorf("unknown reference field: %q", reference)
	}
	switch TriggerField(strings.ToLower(strings.TrimSpace(trigger))) {
	case TriggerHigh, "":
		v.Trigger = TriggerHigh
	case TriggerClose:
		v.Trigger = TriggerClose
	default:
		return Variant{}, fmt.Errorf("unknown trigger field: %q", trigger)
	}
	switch ExitPolicy(strings.ToLower(strings.TrimSpace(exit))) {
	case ExitTrailing, "":
		v.Exit = ExitTrailing
	case ExitNextOpen:
		v.Exit = ExitNextOpen
	default:
		return Variant{}, fmt.Errorf("unknown exit policy: %q", exit)
	}
	return v, nil
}

func (v Variant) String() string {
	return fmt.Sprintf("larry-williams(ratio=%.2f window=%d ref=%s trigger=%s exit=%s)",
		v.Ratio, v.TrailingWindow, v.Reference, v.Trigger, v.Exit)
}
