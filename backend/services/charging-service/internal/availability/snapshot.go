package availability

import (
	"cmp"
	"slices"

	"chargeflow/backend/services/charging-service/internal/models"
)

// PointView is a point together with its externally predicted wait, if any.
type PointView struct {
	Point                models.ChargingPoint
	PredictedFreeMinutes *int
}

// PointSnapshot builds the classifier input for a single point.
func PointSnapshot(v PointView) Snapshot {
	snap := Snapshot{Operational: operational(v.Point.Status)}
	switch v.Point.Status {
	case models.PointStatusAvailable:
		snap.AvailableSpots = 1
		snap.FreeConnectors = []string{v.Point.ConnectorType}
	case models.PointStatusInUse, models.PointStatusReserved:
		snap.PredictedFreeMinutes = copyMinutes(v.PredictedFreeMinutes)
	}
	return snap
}

// StationSnapshot aggregates the points of a station. A station flagged for maintenance, or
// whose points are all out of service, is classified by that state; otherwise free points add
// up and the shortest predicted wait among busy points is kept.
func StationSnapshot(station models.Station, points []PointView) Snapshot {
	if station.Maintenance {
		return Snapshot{Operational: OperationalMaintenance}
	}
	if len(points) == 0 {
		return Snapshot{Operational: OperationalOffline}
	}

	var (
		snap                 = Snapshot{Operational: OperationalNormal}
		maintenance, offline int
	)
	for _, v := range points {
		switch v.Point.Status {
		case models.PointStatusMaintenance:
			maintenance++
			continue
		case models.PointStatusOffline:
			offline++
			continue
		}

		ps := PointSnapshot(v)
		snap.AvailableSpots += ps.AvailableSpots
		snap.FreeConnectors = append(snap.FreeConnectors, ps.FreeConnectors...)
		if ps.PredictedFreeMinutes != nil &&
			(snap.PredictedFreeMinutes == nil || *ps.PredictedFreeMinutes < *snap.PredictedFreeMinutes) {
			snap.PredictedFreeMinutes = ps.PredictedFreeMinutes
		}
	}

	switch {
	case maintenance == len(points):
		snap = Snapshot{Operational: OperationalMaintenance}
	case maintenance+offline == len(points):
		snap = Snapshot{Operational: OperationalOffline}
	}
	return snap
}

// Ranked pairs an identifier with its classification for list views.
type Ranked struct {
	ID             string         `json:"id"`
	Classification Classification `json:"classification"`
}

// Rank orders entries by class priority. Entries with equal priority keep their input order.
func Rank(entries []Ranked) {
	slices.SortStableFunc(entries, func(a, b Ranked) int {
		return cmp.Compare(a.Classification.Priority, b.Classification.Priority)
	})
}

func operational(s models.PointStatus) Operational {
	switch s {
	case models.PointStatusMaintenance:
		return OperationalMaintenance
	case models.PointStatusOffline:
		return OperationalOffline
	}
	return OperationalNormal
}

func copyMinutes(m *int) *int {
	if m == nil {
		return nil
	}
	v := *m
	return &v
}
