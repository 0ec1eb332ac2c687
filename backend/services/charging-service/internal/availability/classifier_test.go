package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chargeflow/backend/services/charging-service/internal/models"
)

func minutes(m int) *int { return &m }

func TestClassifyPrecedence(t *testing.T) {
	c := NewClassifier(15 * time.Minute)
	ccs := &Vehicle{ConnectorType: "CCS2"}

	tests := []struct {
		name    string
		snap    Snapshot
		vehicle *Vehicle
		want    Class
	}{
		{
			name: "maintenance dominates free spots",
			snap: Snapshot{Operational: OperationalMaintenance, AvailableSpots: 4, FreeConnectors: []string{"CCS2"}},
			want: ClassMaintenance,
		},
		{
			name: "offline with free spots",
			snap: Snapshot{Operational: OperationalOffline, AvailableSpots: 3},
			want: ClassOffline,
		},
		{
			name: "busy but freeing up within threshold",
			snap: Snapshot{Operational: OperationalNormal, PredictedFreeMinutes: minutes(15)},
			want: ClassSoonAvailable,
		},
		{
			name: "busy beyond threshold",
			snap: Snapshot{Operational: OperationalNormal, PredictedFreeMinutes: minutes(16)},
			want: ClassFull,
		},
		{
			name: "busy without prediction",
			snap: Snapshot{Operational: OperationalNormal},
			want: ClassFull,
		},
		{
			name:    "free but wrong connector",
			snap:    Snapshot{Operational: OperationalNormal, AvailableSpots: 1, FreeConnectors: []string{"Type2"}},
			vehicle: ccs,
			want:    ClassIncompatible,
		},
		{
			name:    "free and compatible",
			snap:    Snapshot{Operational: OperationalNormal, AvailableSpots: 2, FreeConnectors: []string{"Type2", "ccs2"}},
			vehicle: ccs,
			want:    ClassAvailable,
		},
		{
			name: "free without vehicle",
			snap: Snapshot{Operational: OperationalNormal, AvailableSpots: 1, FreeConnectors: []string{"Type2"}},
			want: ClassAvailable,
		},
		{
			name:    "incompatibility ignored when busy",
			snap:    Snapshot{Operational: OperationalNormal, FreeConnectors: []string{"Type2"}},
			vehicle: ccs,
			want:    ClassFull,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.snap, tt.vehicle)
			assert.Equal(t, tt.want, got.Class)
			assert.Equal(t, Describe(tt.want), got.Descriptor)
		})
	}
}

func TestPriorityTable(t *testing.T) {
	assert.Equal(t, 1, ClassAvailable.Priority())
	assert.Equal(t, 2, ClassSoonAvailable.Priority())
	assert.Equal(t, 3, ClassIncompatible.Priority())
	assert.Equal(t, 4, ClassFull.Priority())
	assert.Equal(t, 5, ClassMaintenance.Priority())
	assert.Equal(t, 6, ClassOffline.Priority())
	assert.Greater(t, Class("unknown").Priority(), ClassOffline.Priority())
}

func TestOfflinePointWithSpotsSortsAfterAvailableAndMaintenance(t *testing.T) {
	c := NewClassifier(10 * time.Minute)
	offline := c.Classify(Snapshot{Operational: OperationalOffline, AvailableSpots: 3}, nil)
	require.Equal(t, ClassOffline, offline.Class)
	assert.Greater(t, offline.Priority, ClassAvailable.Priority())
	assert.Greater(t, offline.Priority, ClassMaintenance.Priority())
}

func TestPointSnapshot(t *testing.T) {
	c := NewClassifier(10 * time.Minute)

	free := PointSnapshot(PointView{Point: models.ChargingPoint{Status: models.PointStatusAvailable, ConnectorType: "CCS2"}})
	assert.Equal(t, 1, free.AvailableSpots)
	assert.Equal(t, ClassAvailable, c.Classify(free, &Vehicle{ConnectorType: "CCS2"}).Class)
	assert.Equal(t, ClassIncompatible, c.Classify(free, &Vehicle{ConnectorType: "CHAdeMO"}).Class)

	busy := PointSnapshot(PointView{
		Point:                models.ChargingPoint{Status: models.PointStatusInUse},
		PredictedFreeMinutes: minutes(5),
	})
	assert.Equal(t, ClassSoonAvailable, c.Classify(busy, nil).Class)

	reserved := PointSnapshot(PointView{Point: models.ChargingPoint{Status: models.PointStatusReserved}})
	assert.Equal(t, ClassFull, c.Classify(reserved, nil).Class)

	down := PointSnapshot(PointView{Point: models.ChargingPoint{Status: models.PointStatusMaintenance}})
	assert.Equal(t, ClassMaintenance, c.Classify(down, nil).Class)
}

func TestStationSnapshot(t *testing.T) {
	c := NewClassifier(10 * time.Minute)
	point := func(status models.PointStatus, connector string, wait *int) PointView {
		return PointView{
			Point:                models.ChargingPoint{Status: status, ConnectorType: connector},
			PredictedFreeMinutes: wait,
		}
	}

	t.Run("maintenance flag wins", func(t *testing.T) {
		snap := StationSnapshot(models.Station{Maintenance: true}, []PointView{point(models.PointStatusAvailable, "CCS2", nil)})
		assert.Equal(t, ClassMaintenance, c.Classify(snap, nil).Class)
	})

	t.Run("aggregates free points", func(t *testing.T) {
		snap := StationSnapshot(models.Station{}, []PointView{
			point(models.PointStatusAvailable, "CCS2", nil),
			point(models.PointStatusAvailable, "Type2", nil),
			point(models.PointStatusInUse, "CCS2", minutes(3)),
			point(models.PointStatusMaintenance, "CHAdeMO", nil),
		})
		assert.Equal(t, 2, snap.AvailableSpots)
		assert.ElementsMatch(t, []string{"CCS2", "Type2"}, snap.FreeConnectors)
		assert.Equal(t, ClassAvailable, c.Classify(snap, &Vehicle{ConnectorType: "Type2"}).Class)
		assert.Equal(t, ClassIncompatible, c.Classify(snap, &Vehicle{ConnectorType: "CHAdeMO"}).Class)
	})

	t.Run("shortest wait among busy points", func(t *testing.T) {
		snap := StationSnapshot(models.Station{}, []PointView{
			point(models.PointStatusInUse, "CCS2", minutes(30)),
			point(models.PointStatusInUse, "CCS2", minutes(8)),
			point(models.PointStatusReserved, "CCS2", nil),
		})
		require.NotNil(t, snap.PredictedFreeMinutes)
		assert.Equal(t, 8, *snap.PredictedFreeMinutes)
		assert.Equal(t, ClassSoonAvailable, c.Classify(snap, nil).Class)
	})

	t.Run("all points out of service", func(t *testing.T) {
		snap := StationSnapshot(models.Station{}, []PointView{
			point(models.PointStatusMaintenance, "CCS2", nil),
			point(models.PointStatusOffline, "CCS2", nil),
		})
		assert.Equal(t, ClassOffline, c.Classify(snap, nil).Class)

		snap = StationSnapshot(models.Station{}, []PointView{point(models.PointStatusMaintenance, "CCS2", nil)})
		assert.Equal(t, ClassMaintenance, c.Classify(snap, nil).Class)
	})

	t.Run("no points", func(t *testing.T) {
		assert.Equal(t, ClassOffline, c.Classify(StationSnapshot(models.Station{}, nil), nil).Class)
	})
}

func TestRankIsStable(t *testing.T) {
	entries := []Ranked{
		{ID: "a", Classification: classification(ClassFull)},
		{ID: "b", Classification: classification(ClassAvailable)},
		{ID: "c", Classification: classification(ClassOffline)},
		{ID: "d", Classification: classification(ClassAvailable)},
		{ID: "e", Classification: classification(ClassMaintenance)},
	}
	Rank(entries)

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"b", "d", "a", "e", "c"}, ids)
}
