package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chargeflow/backend/services/charging-service/internal/models"
	"chargeflow/backend/services/charging-service/internal/service"
)

func TestSessionRepositoryEnforcesOneActivePerUserAndPoint(t *testing.T) {
	repo := NewSessionRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Session{ID: "s1", UserID: "u1", PointID: "p1", Status: models.SessionStatusActive}))
	assert.ErrorIs(t, repo.Create(ctx, &models.Session{ID: "s2", UserID: "u1", PointID: "p2", Status: models.SessionStatusActive}), service.ErrDuplicateActiveSession)
	assert.ErrorIs(t, repo.Create(ctx, &models.Session{ID: "s3", UserID: "u2", PointID: "p1", Status: models.SessionStatusActive}), service.ErrPointUnavailable)

	got, err := repo.ActiveByPoint(ctx, "p1")
	require.NoError(t, err)
	got.Status = models.SessionStatusCompleted
	require.NoError(t, repo.Update(ctx, got))

	_, err = repo.ActiveByUser(ctx, "u1")
	assert.ErrorIs(t, err, service.ErrSessionNotFound)
	require.NoError(t, repo.Create(ctx, &models.Session{ID: "s4", UserID: "u1", PointID: "p1", Status: models.SessionStatusActive}))
}

func TestSessionRepositoryUpdateKeepsFinishedSessions(t *testing.T) {
	repo := NewSessionRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &models.Session{ID: "s1", UserID: "u1", PointID: "p1", Status: models.SessionStatusActive}))

	stale, err := repo.Get(ctx, "s1")
	require.NoError(t, err)

	total := decimal.NewFromInt(50000)
	done, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	done.Status = models.SessionStatusCompleted
	done.TotalCost = &total
	require.NoError(t, repo.Update(ctx, done))

	assert.ErrorIs(t, repo.Update(ctx, stale), service.ErrSessionNotActive)
	assert.ErrorIs(t, repo.Update(ctx, &models.Session{ID: "ghost"}), service.ErrSessionNotFound)

	got, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, got.Status)
	require.NotNil(t, got.TotalCost)
	assert.True(t, got.TotalCost.Equal(total))
}

func TestSessionRepositoryReturnsCopies(t *testing.T) {
	repo := NewSessionRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &models.Session{ID: "s1", UserID: "u1", MeterCurrent: decimal.NewFromInt(5)}))

	got, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	got.MeterCurrent = decimal.NewFromInt(9)

	again, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, again.MeterCurrent.Equal(decimal.NewFromInt(5)))
}

func TestSessionRepositoryListByUser(t *testing.T) {
	repo := NewSessionRepository()
	ctx := context.Background()
	t0 := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Create(ctx, &models.Session{ID: id, UserID: "u1", Status: models.SessionStatusCompleted, StartTime: t0.Add(time.Duration(i) * time.Minute)}))
	}
	require.NoError(t, repo.Create(ctx, &models.Session{ID: "x", UserID: "u2"}))

	list, err := repo.ListByUser(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
}

func TestInvoiceRepositoryUniquePerSession(t *testing.T) {
	repo := NewInvoiceRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &models.Invoice{ID: "i1", SessionID: "s1", UserID: "u1"}))
	assert.ErrorIs(t, repo.Create(ctx, &models.Invoice{ID: "i2", SessionID: "s1"}), service.ErrInvoiceExists)

	got, err := repo.GetBySession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "i1", got.ID)

	_, err = repo.Get(ctx, "nope")
	assert.ErrorIs(t, err, service.ErrInvoiceNotFound)
}

func TestPointRepositoryStatus(t *testing.T) {
	repo := NewPointRepository()
	ctx := context.Background()
	repo.PutStation(models.Station{ID: "st1"})
	repo.PutPoint(models.ChargingPoint{ID: "p2", StationID: "st1", Status: models.PointStatusAvailable})
	repo.PutPoint(models.ChargingPoint{ID: "p1", StationID: "st1", Status: models.PointStatusAvailable})

	require.NoError(t, repo.SetPointStatus(ctx, "p1", models.PointStatusReserved, "b1"))
	p, err := repo.GetPoint(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.PointStatusReserved, p.Status)
	assert.Equal(t, "b1", p.ReservedBookingID)

	points, err := repo.ListPointsByStation(ctx, "st1")
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, "p1", points[0].ID)

	assert.ErrorIs(t, repo.SetPointStatus(ctx, "zz", models.PointStatusOffline, ""), service.ErrPointNotFound)
	_, err = repo.GetStation(ctx, "zz")
	assert.ErrorIs(t, err, service.ErrStationNotFound)
}

func TestPointRepositoryUpsertKeepsStatus(t *testing.T) {
	repo := NewPointRepository()
	ctx := context.Background()

	assert.ErrorIs(t, repo.UpsertPoint(ctx, models.ChargingPoint{ID: "p1", StationID: "st1"}), service.ErrStationNotFound)

	require.NoError(t, repo.UpsertStation(ctx, models.Station{ID: "st1", Name: "Central"}))
	require.NoError(t, repo.UpsertPoint(ctx, models.ChargingPoint{ID: "p1", StationID: "st1", PowerKW: 22, Status: models.PointStatusAvailable}))
	require.NoError(t, repo.SetPointStatus(ctx, "p1", models.PointStatusReserved, "b1"))
	require.NoError(t, repo.UpsertPoint(ctx, models.ChargingPoint{ID: "p1", StationID: "st1", PowerKW: 50, Status: models.PointStatusAvailable}))

	p, err := repo.GetPoint(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 50.0, p.PowerKW)
	assert.Equal(t, models.PointStatusReserved, p.Status)
	assert.Equal(t, "b1", p.ReservedBookingID)
}
