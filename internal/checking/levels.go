package checking

import (
	"fmt"
	"strconv"
)

// Number is any value a threshold can be configured for.
type Number interface {
	~int | ~int64 | ~uint | ~uint64 | ~float64
}

// FormatNumber renders n in its shortest decimal form, without exponent.
func FormatNumber[T Number](n T) string {
	switch v := any(n).(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// Bounds is a two-sided acceptable range. Leaving it on either side yields a
// single configured severity.
type Bounds[T Number] struct {
	Lower T
	Upper *T
}

// LowerBound returns bounds with only a minimum.
func LowerBound[T Number](lower T) Bounds[T] {
	return Bounds[T]{Lower: lower}
}

// LowerUpperBounds returns bounds with a minimum and a maximum.
func LowerUpperBounds[T Number](lower, upper T) Bounds[T] {
	return Bounds[T]{Lower: lower, Upper: &upper}
}

// Evaluate returns crossed and true if value lies outside the bounds.
func (b Bounds[T]) Evaluate(value T, crossed Severity) (Severity, bool) {
	if value < b.Lower || (b.Upper != nil && value > *b.Upper) {
		return crossed, true
	}
	return Ok, false
}

// Direction tells whether levels guard against values that are too high or
// too low.
type Direction int

const (
	Upper Direction = iota
	Lower
)

// Levels are one-sided thresholds. Without Crit the severity caps at Warn.
type Levels[T Number] struct {
	Direction Direction
	Warn      T
	Crit      *T
}

// UpperWarn returns upper levels with only a warning threshold.
func UpperWarn[T Number](warn T) Levels[T] {
	return Levels[T]{Direction: Upper, Warn: warn}
}

// UpperWarnCrit returns upper levels with warning and critical thresholds.
func UpperWarnCrit[T Number](warn, crit T) Levels[T] {
	return Levels[T]{Direction: Upper, Warn: warn, Crit: &crit}
}

// LowerWarn returns lower levels with only a warning threshold.
func LowerWarn[T Number](warn T) Levels[T] {
	return Levels[T]{Direction: Lower, Warn: warn}
}

// LowerWarnCrit returns lower levels with warning and critical thresholds.
func LowerWarnCrit[T Number](warn, crit T) Levels[T] {
	return Levels[T]{Direction: Lower, Warn: warn, Crit: &crit}
}

// Evaluate compares value against the levels. Comparisons are strict.
func (l Levels[T]) Evaluate(value T) Severity {
	beyond := func(threshold T) bool {
		if l.Direction == Lower {
			return value < threshold
		}
		return value > threshold
	}
	switch {
	case l.Crit != nil && beyond(*l.Crit):
		return Crit
	case beyond(l.Warn):
		return Warn
	default:
		return Ok
	}
}

// Float converts the levels for use in a metric.
func (l Levels[T]) Float() Levels[float64] {
	out := Levels[float64]{Direction: l.Direction, Warn: float64(l.Warn)}
	if l.Crit != nil {
		out.Crit = Ptr(float64(*l.Crit))
	}
	return out
}

func (l Levels[T]) describe(unit string) string {
	if l.Crit == nil {
		return fmt.Sprintf(" (warn at %s%s)", FormatNumber(l.Warn), unit)
	}
	return fmt.Sprintf(" (warn/crit at %s%s/%s%s)", FormatNumber(l.Warn), unit, FormatNumber(*l.Crit), unit)
}

// CheckLevels reports a labeled measurement. The measurement is always
// recorded in the details; a violated threshold also goes to the summary.
func CheckLevels[T Number](label string, value T, unit string, levels *Levels[T]) []CheckResult {
	text := fmt.Sprintf("%s: %s%s", label, FormatNumber(value), unit)
	if levels == nil {
		return []CheckResult{Details(Ok, text)}
	}
	sev := levels.Evaluate(value)
	if sev == Ok {
		return []CheckResult{Details(Ok, text)}
	}
	text += levels.describe(unit)
	return []CheckResult{Summary(sev, text), Details(sev, text)}
}
