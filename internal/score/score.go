// Package score derives a 0-100 safety score from a tourist's recent alerts.
package score

import (
	"math"
	"time"

	"safety-service/internal/models"
)

const (
	// Lookback is how far back alerts are considered.
	Lookback = 14 * 24 * time.Hour

	maxScore     = 100.0
	decayFloor   = 0.3
	lookbackDays = 14.0

	panicCeiling       = 40.0
	panicCeilingWindow = 24 * time.Hour

	quietWindow   = 3 * 24 * time.Hour
	recoveryBonus = 10.0
	recoveryCap   = 90.0
)

// Compute returns the score for alerts evaluated at now. Alerts triggered
// before now-Lookback are ignored, so callers may pass a wider set.
func Compute(alerts []models.Alert, now time.Time) int {
	windowStart := now.Add(-Lookback)

	score := maxScore
	panicOpen := false
	quiet := true
	for _, a := range alerts {
		if a.TriggeredAt.IsZero() || a.TriggeredAt.Before(windowStart) {
			continue
		}
		score -= Penalty(a, now)

		if a.Kind == models.KindPanic && a.Severity == models.SeverityCritical &&
			a.IsOpen() && !a.TriggeredAt.Before(now.Add(-panicCeilingWindow)) {
			panicOpen = true
		}
		if !a.TriggeredAt.Before(now.Add(-quietWindow)) {
			quiet = false
		}
	}

	if panicOpen {
		score = math.Min(score, panicCeiling)
	}
	if quiet && score < recoveryCap {
		score = math.Min(recoveryCap, score+recoveryBonus)
	}
	score = math.Max(0, math.Min(maxScore, score))
	return int(math.RoundToEven(score))
}

// Penalty is the amount a single alert subtracts from the score at now.
func Penalty(a models.Alert, now time.Time) float64 {
	return basePenalty(a.Severity) * Decay(a.TriggeredAt, now) * typeFactor(a.Kind) * resolutionFactor(a.Status)
}

// Decay falls linearly from 1 to the 0.3 floor over the lookback period.
func Decay(triggeredAt, now time.Time) float64 {
	ageDays := math.Max(0, now.Sub(triggeredAt).Hours()/24)
	return math.Max(decayFloor, 1-math.Min(ageDays, lookbackDays)/lookbackDays)
}

func basePenalty(s models.Severity) float64 {
	switch s {
	case models.SeverityCritical:
		return 25
	case models.SeverityHigh:
		return 15
	case models.SeverityMedium, models.SeverityLow:
		return 7
	default:
		return 5
	}
}

func typeFactor(k models.AlertKind) float64 {
	switch k {
	case models.KindPanic:
		return 1.5
	case models.KindGeofenceBreach:
		return 1.2
	default:
		return 1.0
	}
}

func resolutionFactor(s models.AlertStatus) float64 {
	if s == models.StatusResolved {
		return 0.7
	}
	return 1.0
}
