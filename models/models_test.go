package models

import (
	"encoding/json"
	"testing"
	"time"
)

const sampleSnapshot = `{
  "response": {
    "data": {
      "stopPlace": {
        "id": "NSR:StopPlace:58366",
        "name": "Nydalen",
        "estimatedCalls": [
          {
            "realtime": true,
            "aimedArrivalTime": "2025-01-06T08:10:00+01:00",
            "aimedDepartureTime": "2025-01-06T08:10:30+01:00",
            "expectedArrivalTime": "2025-01-06T08:13:00+01:00",
            "expectedDepartureTime": "2025-01-06T08:13:30+01:00",
            "quay": {"id": "NSR:Quay:101356"},
            "serviceJourney": {
              "journeyPattern": {
                "line": {"id": "RUT:Line:5260", "name": "260 Oslo bussterminal", "transportMode": "bus"}
              }
            }
          }
        ]
      }
    }
  },
  "timestamp": "20250106_080500"
}`

func TestSnapshotUnmarshal(t *testing.T) {
	var snap Snapshot
	if err := json.Unmarshal([]byte(sampleSnapshot), &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	calls := snap.Response.Data.StopPlace.EstimatedCalls
	if len(calls) != 1 {
		t.Fatalf("expected 1 estimated call, got %d", len(calls))
	}

	call := calls[0]
	if !call.Realtime {
		t.Fatal("realtime flag lost")
	}
	if call.Quay.ID != "NSR:Quay:101356" {
		t.Fatalf("unexpected quay id %q", call.Quay.ID)
	}
	line := call.ServiceJourney.JourneyPattern.Line
	if line.ID != "RUT:Line:5260" || line.TransportMode != "bus" {
		t.Fatalf("unexpected line %+v", line)
	}

	loc := time.FixedZone("CET", 3600)
	want := time.Date(2025, 1, 6, 8, 10, 0, 0, loc)
	if !call.AimedArrivalTime.Equal(want) {
		t.Fatalf("aimed arrival = %v, want %v", call.AimedArrivalTime, want)
	}
}

func TestSnapshotCapturedAt(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Oslo")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	snap := Snapshot{Timestamp: "20250106_080500"}
	got, err := snap.CapturedAt(loc)
	if err != nil {
		t.Fatalf("captured at: %v", err)
	}
	want := time.Date(2025, 1, 6, 8, 5, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("captured at = %v, want %v", got, want)
	}

	snap.Timestamp = "not-a-timestamp"
	if _, err := snap.CapturedAt(loc); err == nil {
		t.Fatal("expected error for malformed timestamp")
	}
}

func TestDeviationKeyMatchesFlatCall(t *testing.T) {
	aimed := time.Date(2025, 1, 6, 8, 10, 0, 0, time.UTC)
	call := FlatCall{AimedArrival: aimed, LineID: "RUT:Line:5260"}
	rec := DeviationRecord{AimedArrival: aimed, LineID: "RUT:Line:5260"}
	if call.Key() != rec.Key() {
		t.Fatalf("key mismatch: %+v vs %+v", call.Key(), rec.Key())
	}
}
