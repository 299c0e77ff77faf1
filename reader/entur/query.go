package entur

import (
	"fmt"
	"os"

	appconfig "github.com/vegardkv/travelpredict/config"
)

const queryTemplate = `{
  stopPlace(id: "%s") {
    id
    name
    estimatedCalls(numberOfDepartures: %d) {
      realtime
      aimedArrivalTime
      aimedDepartureTime
      expectedArrivalTime
      expectedDepartureTime
      quay { id }
      serviceJourney {
        journeyPattern {
          line { id name transportMode }
        }
      }
    }
  }
}`

// BuildQuery returns the GraphQL query for the configured stop place, or the
// contents of feed.query_file when one is set.
func BuildQuery(cfg *appconfig.Config) (string, error) {
	if cfg.Feed.QueryFile != "" {
		data, err := os.ReadFile(cfg.Feed.QueryFile)
		if err != nil {
			return "", fmt.Errorf("read query file: %w", err)
		}
		return string(data), nil
	}
	return fmt.Sprintf(queryTemplate, cfg.Feed.StopPlaceID, cfg.Feed.NumberOfDepartures), nil
}
