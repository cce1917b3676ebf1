package seed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safety-service/internal/logging"
	"safety-service/internal/memstore"
	"safety-service/internal/models"
)

const doc = `
zones:
  - name: Old Market
    city: Jaipur
    risk_level: High
    category: crime
    geom:
      bbox: [75.80, 26.90, 75.84, 26.94]
  - name: Riverbank
    city: Rishikesh
    risk_level: medium
    bbox: [78.30, 30.10, 78.32, 30.12]
    is_active: false
`

func TestParse(t *testing.T) {
	zones, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, zones, 2)

	assert.Equal(t, "Old Market", zones[0].Name)
	assert.Equal(t, models.RiskHigh, zones[0].RiskLevel)
	assert.True(t, zones[0].IsActive)
	assert.Equal(t, "crime", *zones[0].Category)

	assert.False(t, zones[1].IsActive)
	assert.Equal(t, []interface{}{78.30, 30.10, 78.32, 30.12}, zones[1].Geom["bbox"])
}

func TestParseRejectsBadZones(t *testing.T) {
	cases := map[string]string{
		"no name":   "zones:\n  - risk_level: high\n    bbox: [1, 2, 3, 4]\n",
		"no geom":   "zones:\n  - name: x\n    risk_level: high\n",
		"short box": "zones:\n  - name: x\n    bbox: [1, 2, 3]\n",
		"not yaml":  "zones: [",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(in))
			assert.Error(t, err)
		})
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	zones, err := Parse([]byte(doc))
	require.NoError(t, err)

	n, err := Apply(ctx, store, zones, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	zones[0].RiskLevel = models.RiskLow
	_, err = Apply(ctx, store, zones, logging.Discard())
	require.NoError(t, err)

	all, err := store.ListZones(ctx, models.ZoneFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, models.RiskLow, all[0].RiskLevel)
	assert.Equal(t, "seed", *all[0].CreatedBy)

	active, err := store.ActiveZones(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

type failingStore struct{}

func (failingStore) UpsertZone(context.Context, *models.RiskZone) error {
	return errors.New("db down")
}

func TestApplyStopsOnError(t *testing.T) {
	zones, err := Parse([]byte(doc))
	require.NoError(t, err)
	n, err := Apply(context.Background(), failingStore{}, zones, logging.Discard())
	assert.Error(t, err)
	assert.Equal(t, 0, n)
}

func TestFromFile(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	n, err := FromFile(ctx, store, "", logging.Discard())
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = FromFile(ctx, store, filepath.Join(t.TempDir(), "missing.yaml"), logging.Discard())
	require.NoError(t, err)
	assert.Zero(t, n)

	path := filepath.Join(t.TempDir(), "zones.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	n, err = FromFile(ctx, store, path, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
