package models

import "time"

// FlatCall is one flattened observation: a single estimated call joined with
// the capture time of the snapshot that reported it.
type FlatCall struct {
	Timestamp         time.Time
	Realtime          bool
	AimedArrival      time.Time
	AimedDeparture    time.Time
	ExpectedArrival   time.Time
	ExpectedDeparture time.Time
	QuayID            string
	LineID            string
	LineName          string
	TransportMode     string
}

// DeviationKey is the composite identity of a reconciled record. Two rows
// with the same key describe the same scheduled event.
type DeviationKey struct {
	AimedArrivalUnix int64
	LineID           string
}

func (c FlatCall) Key() DeviationKey {
	return DeviationKey{AimedArrivalUnix: c.AimedArrival.Unix(), LineID: c.LineID}
}

// DeviationRecord is the reconciled per-(aimed arrival, line) output row.
// Records are never mutated in place; a later observation for the same key
// replaces the stored row through the repository upsert.
type DeviationRecord struct {
	AimedArrival      time.Time
	LineID            string
	Timestamp         time.Time
	Realtime          bool
	AimedDeparture    time.Time
	ExpectedArrival   time.Time
	ExpectedDeparture time.Time
	QuayID            string
	LineName          string
	TransportMode     string
	ExpectedDelay     time.Duration
	ObservationDelay  time.Duration

	// Calendar features derived from AimedArrival. DayNumber counts whole
	// days since a fixed epoch so records from unrelated collection runs
	// share one day axis.
	DayOfWeek time.Weekday
	TimeOfDay string
	Month     time.Month
	DayNumber int
}

func (r DeviationRecord) Key() DeviationKey {
	return DeviationKey{AimedArrivalUnix: r.AimedArrival.Unix(), LineID: r.LineID}
}
