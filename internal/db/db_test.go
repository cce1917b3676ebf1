package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safety-service/internal/engine"
	"safety-service/internal/models"
	"safety-service/internal/vault"
)

// openTestDB connects to TEST_DB_DSN or skips.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}
	sealer, err := vault.New("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	require.NoError(t, err)

	ctx := context.Background()
	d, err := New(ctx, dsn, sealer)
	require.NoError(t, err)
	t.Cleanup(d.Close)

	require.NoError(t, d.Migrate(ctx))
	_, err = d.Pool.Exec(ctx, `TRUNCATE alert_dispatches, safety_alerts, tourist_locations, risk_zones, tourist_profiles RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return d
}

func TestSubjectRoundTripSealsPII(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	idNumber, phone := "P1234567", "+911111111111"
	s := models.Subject{ActorID: "user-1", FullName: "A", IDNumber: &idNumber,
		EmergencyContactPhone: &phone, PlannedCities: []string{"Jaipur"}, IsActive: true}
	require.NoError(t, d.CreateSubject(ctx, &s))
	assert.Equal(t, "TR-000001", s.Code)

	var raw string
	require.NoError(t, d.Pool.QueryRow(ctx, `SELECT id_number FROM tourist_profiles WHERE id = $1`, s.ID).Scan(&raw))
	assert.NotEqual(t, idNumber, raw)

	got, err := d.SubjectByActor(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, idNumber, *got.IDNumber)
	assert.Equal(t, phone, *got.EmergencyContactPhone)
	assert.Equal(t, []string{"Jaipur"}, got.PlannedCities)

	_, err = d.SubjectByCode(ctx, "TR-999999")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestTxDedupQueries(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	s := models.Subject{ActorID: "user-1", FullName: "A", IsActive: true}
	require.NoError(t, d.CreateSubject(ctx, &s))

	err := d.WithTx(ctx, func(tx engine.Tx) error {
		require.NoError(t, tx.LockSubject(ctx, s.ID))
		require.NoError(t, tx.InsertLocation(ctx, &models.Location{SubjectID: s.ID, SubjectCode: s.Code, Lat: 1, Lng: 1, RecordedAt: now.Add(-time.Hour)}))
		return tx.InsertAlert(ctx, &models.Alert{
			SubjectID: &s.ID, SubjectCode: &s.Code, Kind: models.KindGeofenceBreach,
			Severity: models.SeverityHigh, Status: models.StatusNew, Title: "t",
			TriggeredAt: now, Payload: models.Payload{"zone_id": int64(3)},
		})
	})
	require.NoError(t, err)

	err = d.WithTx(ctx, func(tx engine.Tx) error {
		after := now.Add(-5 * time.Minute)
		zone, other := int64(3), int64(4)

		open, err := tx.HasOpenAlert(ctx, models.OpenAlertQuery{SubjectID: s.ID, Kind: models.KindGeofenceBreach, ZoneID: &zone, TriggeredAfter: &after})
		require.NoError(t, err)
		assert.True(t, open)

		open, err = tx.HasOpenAlert(ctx, models.OpenAlertQuery{SubjectID: s.ID, Kind: models.KindGeofenceBreach, ZoneID: &other, TriggeredAfter: &after})
		require.NoError(t, err)
		assert.False(t, open)

		prev, err := tx.PreviousLocation(ctx, s.ID, now)
		require.NoError(t, err)
		require.NotNil(t, prev)
		assert.True(t, prev.RecordedAt.Equal(now.Add(-time.Hour)))

		prev, err = tx.PreviousLocation(ctx, s.ID, now.Add(-2*time.Hour))
		require.NoError(t, err)
		assert.Nil(t, prev)
		return nil
	})
	require.NoError(t, err)
}
