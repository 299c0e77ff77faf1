package processor

import (
	"errors"
	"sort"
	"time"

	"github.com/vegardkv/travelpredict/logger"
	"github.com/vegardkv/travelpredict/models"
	"github.com/vegardkv/travelpredict/snapshot"
)

// Aggregator reconciles staged snapshots into one deviation record per
// (aimed arrival, line) pair.
type Aggregator struct {
	store *snapshot.Store
	loc   *time.Location
	log   *logger.Log
}

// ReconcileSummary reports the outcome of one reconciliation pass.
type ReconcileSummary struct {
	Pending int
	Parsed  int
	Skipped int
	Rows    int
	Records int
}

func NewAggregator(store *snapshot.Store, loc *time.Location) *Aggregator {
	return &Aggregator{store: store, loc: loc, log: logger.GetLogger()}
}

// Run reads every pending snapshot, reconciles the parsable ones and returns
// the deviation records together with the artifact ids that contributed to
// them. Malformed artifacts are logged and skipped; they stay in the pending
// set for inspection.
func (a *Aggregator) Run() ([]models.DeviationRecord, []string, *ReconcileSummary, error) {
	log := a.log.WithComponent("aggregator")

	ids, err := a.store.ListPending()
	if err != nil {
		return nil, nil, nil, err
	}

	summary := &ReconcileSummary{Pending: len(ids)}

	var rows []models.FlatCall
	var consumed []string
	for _, id := range ids {
		snap, err := a.store.Read(id)
		if err == nil {
			var flat []models.FlatCall
			flat, err = Flatten(snap, a.loc)
			if err == nil {
				rows = append(rows, flat...)
				consumed = append(consumed, id)
				summary.Parsed++
				logger.IncrementSnapshotRead()
				continue
			}
		}

		var parseErr *snapshot.ParseError
		if errors.As(err, &parseErr) {
			summary.Skipped++
			log.WithError(err).WithFields(logger.Fields{"artifact": id}).Warn("skipping malformed snapshot")
			continue
		}
		return nil, nil, nil, err
	}

	summary.Rows = len(rows)
	records := Reconcile(rows)
	summary.Records = len(records)

	log.WithFields(logger.Fields{
		"pending": summary.Pending,
		"parsed":  summary.Parsed,
		"skipped": summary.Skipped,
		"rows":    summary.Rows,
		"records": summary.Records,
	}).Info("reconciliation completed")

	return records, consumed, summary, nil
}

// Flatten emits one row per estimated call carrying the snapshot's capture
// time. A snapshot with an unparsable capture time is reported as a
// ParseError.
func Flatten(snap *models.Snapshot, loc *time.Location) ([]models.FlatCall, error) {
	capturedAt, err := snap.CapturedAt(loc)
	if err != nil {
		return nil, &snapshot.ParseError{Artifact: snap.Timestamp, Err: err}
	}

	calls := snap.Response.Data.StopPlace.EstimatedCalls
	rows := make([]models.FlatCall, 0, len(calls))
	for _, call := range calls {
		line := call.ServiceJourney.JourneyPattern.Line
		rows = append(rows, models.FlatCall{
			Timestamp:         capturedAt,
			Realtime:          call.Realtime,
			AimedArrival:      call.AimedArrivalTime,
			AimedDeparture:    call.AimedDepartureTime,
			ExpectedArrival:   call.ExpectedArrivalTime,
			ExpectedDeparture: call.ExpectedDepartureTime,
			QuayID:            call.Quay.ID,
			LineID:            line.ID,
			LineName:          line.Name,
			TransportMode:     line.TransportMode,
		})
	}
	return rows, nil
}

// Reconcile drops non-realtime rows, groups the rest by (aimed arrival, line)
// and merges each group by taking the column-wise maximum. For the expected
// times this usually coincides with the latest observation, since estimates
// tighten toward the aimed time as the vehicle approaches, but the merge is
// per column and may mix values from different observations when fields are
// not jointly monotonic. Calls whose journey had not concluded by the final
// snapshot are still included; a later run replaces them through the upsert.
func Reconcile(rows []models.FlatCall) []models.DeviationRecord {
	groups := make(map[models.DeviationKey]models.FlatCall)
	for _, row := range rows {
		if !row.Realtime {
			continue
		}
		key := row.Key()
		cur, ok := groups[key]
		if !ok {
			groups[key] = row
			continue
		}
		groups[key] = columnMax(cur, row)
	}

	records := make([]models.DeviationRecord, 0, len(groups))
	for _, row := range groups {
		records = append(records, derive(row))
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].AimedArrival.Equal(records[j].AimedArrival) {
			return records[i].AimedArrival.Before(records[j].AimedArrival)
		}
		return records[i].LineID < records[j].LineID
	})
	return records
}

// columnMax merges two observations of the same scheduled call field by
// field, keeping the larger value in every column independently.
func columnMax(a, b models.FlatCall) models.FlatCall {
	out := a
	out.Timestamp = maxTime(a.Timestamp, b.Timestamp)
	out.AimedArrival = maxTime(a.AimedArrival, b.AimedArrival)
	out.AimedDeparture = maxTime(a.AimedDeparture, b.AimedDeparture)
	out.ExpectedArrival = maxTime(a.ExpectedArrival, b.ExpectedArrival)
	out.ExpectedDeparture = maxTime(a.ExpectedDeparture, b.ExpectedDeparture)
	out.Realtime = a.Realtime || b.Realtime
	out.QuayID = maxString(a.QuayID, b.QuayID)
	out.LineName = maxString(a.LineName, b.LineName)
	out.TransportMode = maxString(a.TransportMode, b.TransportMode)
	return out
}

func maxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

func maxString(a, b string) string {
	if b > a {
		return b
	}
	return a
}

func derive(row models.FlatCall) models.DeviationRecord {
	return models.DeviationRecord{
		AimedArrival:      row.AimedArrival,
		LineID:            row.LineID,
		Timestamp:         row.Timestamp,
		Realtime:          row.Realtime,
		AimedDeparture:    row.AimedDeparture,
		ExpectedArrival:   row.ExpectedArrival,
		ExpectedDeparture: row.ExpectedDeparture,
		QuayID:            row.QuayID,
		LineName:          row.LineName,
		TransportMode:     row.TransportMode,
		ExpectedDelay:     row.ExpectedArrival.Sub(row.AimedArrival),
		ObservationDelay:  row.Timestamp.Sub(row.AimedArrival),
		DayOfWeek:         row.AimedArrival.Weekday(),
		TimeOfDay:         timeOfDay(row.AimedArrival),
		Month:             row.AimedArrival.Month(),
		DayNumber:         dayNumber(row.AimedArrival),
	}
}
