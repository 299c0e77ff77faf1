package models

import (
	"fmt"
	"time"
)

// SnapshotTimeFormat is the capture-time layout used both inside the snapshot
// payload and in artifact file names.
const SnapshotTimeFormat = "20060102_150405"

/////////////////////////////////////////////////////////////////////////////
/////////////////////////////// FEED SCHEMA /////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// Line identifies a transit line within a service journey.
type Line struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	TransportMode string `json:"transportMode"`
}

type JourneyPattern struct {
	Line Line `json:"line"`
}

type ServiceJourney struct {
	JourneyPattern JourneyPattern `json:"journeyPattern"`
}

type Quay struct {
	ID string `json:"id"`
}

// EstimatedCall is one vehicle call at a stop as reported by a single poll of
// the journey-planner feed. Aimed times come from the timetable; expected
// times are live estimates and only meaningful when Realtime is set.
type EstimatedCall struct {
	Realtime              bool           `json:"realtime"`
	AimedArrivalTime      time.Time      `json:"aimedArrivalTime"`
	AimedDepartureTime    time.Time      `json:"aimedDepartureTime"`
	ExpectedArrivalTime   time.Time      `json:"expectedArrivalTime"`
	ExpectedDepartureTime time.Time      `json:"expectedDepartureTime"`
	Quay                  Quay           `json:"quay"`
	ServiceJourney        ServiceJourney `json:"serviceJourney"`
}

type StopPlace struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	EstimatedCalls []EstimatedCall `json:"estimatedCalls"`
}

type FeedData struct {
	StopPlace StopPlace `json:"stopPlace"`
}

// FeedResponse mirrors the GraphQL response envelope of the journey-planner
// API.
type FeedResponse struct {
	Data FeedData `json:"data"`
}

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// SNAPSHOT //////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// Snapshot is one staged poll result: the full feed response plus the capture
// time in SnapshotTimeFormat. Snapshots are written once and never mutated.
type Snapshot struct {
	Response  FeedResponse `json:"response"`
	Timestamp string       `json:"timestamp"`
}

// CapturedAt parses the snapshot capture time in the given location.
func (s *Snapshot) CapturedAt(loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(SnapshotTimeFormat, s.Timestamp, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid snapshot timestamp %q: %w", s.Timestamp, err)
	}
	return t, nil
}
