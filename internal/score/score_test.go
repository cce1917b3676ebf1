package score

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"safety-service/internal/models"
)

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func alert(kind models.AlertKind, sev models.Severity, status models.AlertStatus, age time.Duration) models.Alert {
	return models.Alert{Kind: kind, Severity: sev, Status: status, TriggeredAt: now.Add(-age)}
}

func TestNoAlertsIsPerfect(t *testing.T) {
	assert.Equal(t, 100, Compute(nil, now))
}

func TestSingleFreshGeofenceAlert(t *testing.T) {
	a := alert(models.KindGeofenceBreach, models.SeverityHigh, models.StatusNew, 0)
	assert.InDelta(t, 18.0, Penalty(a, now), 1e-9)
	assert.Equal(t, 82, Compute([]models.Alert{a}, now))
}

func TestDecay(t *testing.T) {
	day := 24 * time.Hour
	assert.InDelta(t, 1.0, Decay(now, now), 1e-9)
	assert.InDelta(t, 0.5, Decay(now.Add(-7*day), now), 1e-9)
	assert.InDelta(t, 0.3, Decay(now.Add(-12*day), now), 1e-9)
	assert.InDelta(t, 0.3, Decay(now.Add(-14*day), now), 1e-9)
	// alerts stamped in the future count as brand new
	assert.InDelta(t, 1.0, Decay(now.Add(time.Hour), now), 1e-9)
}

func TestPenaltyFactors(t *testing.T) {
	cases := []struct {
		name string
		a    models.Alert
		want float64
	}{
		{"critical panic", alert(models.KindPanic, models.SeverityCritical, models.StatusNew, 0), 37.5},
		{"medium inactivity", alert(models.KindInactivity, models.SeverityMedium, models.StatusNew, 0), 7},
		{"low inactivity", alert(models.KindInactivity, models.SeverityLow, models.StatusAcknowledged, 0), 7},
		{"unknown severity", alert(models.KindInactivity, "weird", models.StatusNew, 0), 5},
		{"resolved high geofence", alert(models.KindGeofenceBreach, models.SeverityHigh, models.StatusResolved, 0), 15 * 1.2 * 0.7},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.InDelta(t, c.want, Penalty(c.a, now), 1e-9)
		})
	}
}

func TestCriticalPanicStrictlyLowersScore(t *testing.T) {
	base := []models.Alert{
		alert(models.KindInactivity, models.SeverityMedium, models.StatusResolved, 10*24*time.Hour),
	}
	for _, age := range []time.Duration{0, time.Hour, 2 * 24 * time.Hour, 13 * 24 * time.Hour} {
		withPanic := append([]models.Alert{}, base...)
		withPanic = append(withPanic, alert(models.KindPanic, models.SeverityCritical, models.StatusResolved, age))
		assert.Less(t, Compute(withPanic, now), Compute(base, now), "age %v", age)
	}
}

func TestOpenPanicClampsToForty(t *testing.T) {
	alerts := []models.Alert{
		alert(models.KindPanic, models.SeverityCritical, models.StatusNew, time.Hour),
	}
	// 100 - 37.5 = 62.5 before the ceiling
	assert.Equal(t, 40, Compute(alerts, now))

	alerts[0].Status = models.StatusAcknowledged
	assert.Equal(t, 40, Compute(alerts, now))
}

func TestResolvedOrOldPanicDoesNotClamp(t *testing.T) {
	resolved := alert(models.KindPanic, models.SeverityCritical, models.StatusResolved, time.Hour)
	assert.Greater(t, Compute([]models.Alert{resolved}, now), 40)

	old := alert(models.KindPanic, models.SeverityCritical, models.StatusNew, 25*time.Hour)
	assert.Greater(t, Compute([]models.Alert{old}, now), 40)
}

func TestRecoveryAfterQuietPeriod(t *testing.T) {
	day := 24 * time.Hour
	// three unresolved critical panics 7 days ago: 3 * 25 * 0.5 * 1.5 = 56.25
	// plus one medium inactivity 7 days ago: 7 * 0.5 = 3.5 -> raw 40.25
	alerts := []models.Alert{
		alert(models.KindPanic, models.SeverityCritical, models.StatusNew, 7*day),
		alert(models.KindPanic, models.SeverityCritical, models.StatusNew, 7*day),
		alert(models.KindPanic, models.SeverityCritical, models.StatusNew, 7*day),
		alert(models.KindInactivity, models.SeverityMedium, models.StatusNew, 7*day),
	}
	assert.Equal(t, int(math.RoundToEven(40.25+10)), Compute(alerts, now))
}

func TestRecoveryFromSeventyIsEighty(t *testing.T) {
	day := 24 * time.Hour
	// all seven days old (decay 0.5):
	// two high geofence 2*15*0.5*1.2 = 18, two low inactivity 2*7*0.5 = 7,
	// two unknown severity 2*5*0.5 = 5; raw score 70
	alerts := []models.Alert{
		alert(models.KindGeofenceBreach, models.SeverityHigh, models.StatusNew, 7*day),
		alert(models.KindGeofenceBreach, models.SeverityHigh, models.StatusNew, 7*day),
		alert(models.KindInactivity, models.SeverityLow, models.StatusNew, 7*day),
		alert(models.KindInactivity, models.SeverityLow, models.StatusNew, 7*day),
		alert(models.KindInactivity, "", models.StatusNew, 7*day),
		alert(models.KindInactivity, "", models.StatusNew, 7*day),
	}
	assert.Equal(t, 80, Compute(alerts, now))
}

func TestRecoveryCappedAtNinety(t *testing.T) {
	old := alert(models.KindInactivity, models.SeverityMedium, models.StatusResolved, 10*24*time.Hour)
	// raw = 100 - 7*0.3*0.7 = 98.53, already above the cap so untouched
	assert.Equal(t, 99, Compute([]models.Alert{old}, now))

	two := []models.Alert{
		alert(models.KindInactivity, models.SeverityCritical, models.StatusNew, 4*24*time.Hour),
	}
	// raw = 100 - 25 * (1 - 4/14) = 82.14..., +10 capped at 90
	assert.Equal(t, 90, Compute(two, now))
}

func TestRecentAlertBlocksRecovery(t *testing.T) {
	a := alert(models.KindInactivity, models.SeverityCritical, models.StatusNew, 2*24*time.Hour)
	// 100 - 25 * (1 - 2/14) = 78.57
	assert.Equal(t, 79, Compute([]models.Alert{a}, now))
}

func TestAlertsOutsideLookbackIgnored(t *testing.T) {
	a := alert(models.KindPanic, models.SeverityCritical, models.StatusNew, 15*24*time.Hour)
	assert.Equal(t, 100, Compute([]models.Alert{a}, now))
}

func TestScoreNeverNegative(t *testing.T) {
	var alerts []models.Alert
	for i := 0; i < 20; i++ {
		alerts = append(alerts, alert(models.KindPanic, models.SeverityCritical, models.StatusNew, time.Minute))
	}
	assert.Equal(t, 0, Compute(alerts, now))
}
