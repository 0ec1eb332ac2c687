// Package availability derives the display status of charging points and stations.
//
// The classifier is read-only: it consumes snapshots of point and session state and never
// writes either. Overlapping signals are resolved by a fixed precedence, first match wins:
//
//	maintenance > offline > soon_available > full > incompatible > available
//
// Every class carries a stable sort priority (lower is shown first):
//
//	available      1
//	soon_available 2
//	incompatible   3
//	full           4
//	maintenance    5
//	offline        6
package availability

import (
	"strings"
	"time"
)

// Class is a display status.
type Class string

// Classes.
const (
	ClassAvailable     Class = "available"
	ClassSoonAvailable Class = "soon_available"
	ClassIncompatible  Class = "incompatible"
	ClassFull          Class = "full"
	ClassMaintenance   Class = "maintenance"
	ClassOffline       Class = "offline"
)

// Descriptor is the fixed presentation data of a class.
type Descriptor struct {
	Priority    int    `json:"priority"`
	Label       string `json:"label"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

var descriptors = map[Class]Descriptor{
	ClassAvailable: {
		Priority:    1,
		Label:       "Available",
		Color:       "green",
		Description: "A compatible connector is free now.",
	},
	ClassSoonAvailable: {
		Priority:    2,
		Label:       "Available soon",
		Color:       "yellow",
		Description: "All connectors are busy but one is expected to free up shortly.",
	},
	ClassIncompatible: {
		Priority:    3,
		Label:       "Incompatible",
		Color:       "blue",
		Description: "Connectors are free but none fits the selected vehicle.",
	},
	ClassFull: {
		Priority:    4,
		Label:       "Full",
		Color:       "red",
		Description: "All connectors are busy.",
	},
	ClassMaintenance: {
		Priority:    5,
		Label:       "Under maintenance",
		Color:       "orange",
		Description: "Temporarily closed for maintenance.",
	},
	ClassOffline: {
		Priority:    6,
		Label:       "Offline",
		Color:       "gray",
		Description: "Not reachable.",
	},
}

// Describe returns the descriptor of c. Unknown classes sort last.
func Describe(c Class) Descriptor {
	if d, ok := descriptors[c]; ok {
		return d
	}
	return Descriptor{Priority: len(descriptors) + 1, Label: string(c)}
}

// Priority returns the stable sort priority of c.
func (c Class) Priority() int {
	return Describe(c).Priority
}

// Operational is the operational state of the classified unit.
type Operational string

// Operational states.
const (
	OperationalNormal      Operational = "normal"
	OperationalMaintenance Operational = "maintenance"
	OperationalOffline     Operational = "offline"
)

// Snapshot is the classifier input for one point or one station.
type Snapshot struct {
	Operational Operational
	// AvailableSpots is the number of connectors free now.
	AvailableSpots int
	// FreeConnectors lists the connector types of the free connectors.
	FreeConnectors []string
	// PredictedFreeMinutes is the shortest expected wait for a busy connector, nil when unknown.
	PredictedFreeMinutes *int
}

// Vehicle carries the compatibility data of the vehicle the user is looking for a charger for.
type Vehicle struct {
	ConnectorType string `json:"connector_type"`
}

// Classification is the classifier output.
type Classification struct {
	Class Class `json:"class"`
	Descriptor
}

// Classifier applies the precedence rules.
type Classifier struct {
	// SoonThreshold is the longest predicted wait that still counts as soon available.
	SoonThreshold time.Duration
}

// NewClassifier builds a classifier.
func NewClassifier(soonThreshold time.Duration) Classifier {
	return Classifier{SoonThreshold: soonThreshold}
}

// Classify derives the display class of snap. vehicle may be nil.
func (c Classifier) Classify(snap Snapshot, vehicle *Vehicle) Classification {
	return classification(c.class(snap, vehicle))
}

func (c Classifier) class(snap Snapshot, vehicle *Vehicle) Class {
	switch snap.Operational {
	case OperationalMaintenance:
		return ClassMaintenance
	case OperationalOffline:
		return ClassOffline
	}

	if snap.AvailableSpots <= 0 {
		if c.soon(snap.PredictedFreeMinutes) {
			return ClassSoonAvailable
		}
		return ClassFull
	}

	if vehicle != nil && vehicle.ConnectorType != "" && !fits(snap.FreeConnectors, vehicle.ConnectorType) {
		return ClassIncompatible
	}
	return ClassAvailable
}

func (c Classifier) soon(minutes *int) bool {
	if minutes == nil || *minutes < 0 {
		return false
	}
	return time.Duration(*minutes)*time.Minute <= c.SoonThreshold
}

func fits(connectors []string, want string) bool {
	for _, ct := range connectors {
		if strings.EqualFold(strings.TrimSpace(ct), strings.TrimSpace(want)) {
			return true
		}
	}
	return false
}

func classification(c Class) Classification {
	return Classification{Class: c, Descriptor: Describe(c)}
}
