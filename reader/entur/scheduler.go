package entur

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	appconfig "github.com/vegardkv/travelpredict/config"
	"github.com/vegardkv/travelpredict/logger"
	"github.com/vegardkv/travelpredict/models"
	"github.com/vegardkv/travelpredict/snapshot"
)

// Scheduler polls the feed at a fixed wall-clock cadence while the local time
// lies inside the configured collection window, staging one snapshot per
// successful fetch. Fetches never overlap; a slow fetch costs the next tick.
type Scheduler struct {
	config   *appconfig.Config
	client   *Client
	store    *snapshot.Store
	log      *logger.Log
	loc      *time.Location
	query    string
	session  string
	interval time.Duration
	idlePoll time.Duration
	mu       sync.Mutex
	running  bool
}

// RunSummary reports the outcome of one collection run.
type RunSummary struct {
	Session   string
	Fetches   int
	Failures  int
	Snapshots int
}

func NewScheduler(cfg *appconfig.Config, client *Client, store *snapshot.Store) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Feed.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load feed timezone: %w", err)
	}

	query, err := BuildQuery(cfg)
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		config:   cfg,
		client:   client,
		store:    store,
		log:      logger.GetLogger(),
		loc:      loc,
		query:    query,
		session:  uuid.NewString(),
		interval: time.Duration(cfg.Collector.IntervalSeconds) * time.Second,
		idlePoll: cfg.Collector.IdlePoll,
	}, nil
}

// resolveWindow anchors the HH:MM window to the current day in now's
// location. An end before the start is taken to mean the window wraps past
// midnight into the following day.
func resolveWindow(now time.Time, startTime, endTime string) (time.Time, time.Time, error) {
	sh, sm, err := appconfig.ParseTimeOfDay(startTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	eh, em, err := appconfig.ParseTimeOfDay(endTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	y, m, d := now.Date()
	loc := now.Location()
	start := time.Date(y, m, d, sh, sm, 0, 0, loc)
	end := time.Date(y, m, d, eh, em, 0, 0, loc)
	if end.Before(start) {
		end = end.AddDate(0, 0, 1)
	}
	return start, end, nil
}

// Run executes the collection loop until the window end passes or ctx is
// cancelled. The window instants are computed once at loop start from the
// feed timezone; a UTC offset change mid-run shifts neither of them, which is
// an accepted limitation.
func (s *Scheduler) Run(ctx context.Context) (*RunSummary, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	start, end, err := resolveWindow(time.Now().In(s.loc), s.config.Collector.StartTime, s.config.Collector.EndTime)
	if err != nil {
		return nil, err
	}

	log := s.log.WithComponent("collector").WithFields(logger.Fields{"session": s.session})
	log.WithFields(logger.Fields{
		"window_start": start.Format(time.RFC3339),
		"window_end":   end.Format(time.RFC3339),
		"interval":     s.interval.String(),
	}).Info("starting collection run")

	summary := &RunSummary{Session: s.session}

	for {
		now := time.Now().In(s.loc)
		if now.After(end) {
			log.Info("collection window finished")
			break
		}

		if now.Before(start) {
			log.Debug("waiting for window start")
			if err := sleepContext(ctx, s.idlePoll); err != nil {
				return summary, err
			}
			continue
		}

		next := now.Truncate(s.interval).Add(s.interval)
		if next.After(end) {
			log.Info("no further ticks inside window")
			break
		}
		if err := sleepContext(ctx, time.Until(next)); err != nil {
			return summary, err
		}

		s.fetchOnce(ctx, summary)
	}

	log.WithFields(logger.Fields{
		"fetches":   summary.Fetches,
		"failures":  summary.Failures,
		"snapshots": summary.Snapshots,
	}).Info("collection run completed")

	return summary, nil
}

func (s *Scheduler) fetchOnce(ctx context.Context, summary *RunSummary) {
	log := s.log.WithComponent("collector").WithFields(logger.Fields{"session": s.session})

	summary.Fetches++
	resp, err := s.client.Fetch(ctx, s.query)
	if err != nil {
		summary.Failures++
		log.WithError(err).Warn("fetch failed, skipping tick")
		return
	}

	capturedAt := time.Now().In(s.loc)
	snap := &models.Snapshot{
		Response:  *resp,
		Timestamp: capturedAt.Format(models.SnapshotTimeFormat),
	}

	id, err := s.store.Write(snap)
	if err != nil {
		summary.Failures++
		log.WithError(err).Error("failed to stage snapshot")
		return
	}

	summary.Snapshots++
	logger.IncrementSnapshotWritten()
	log.WithFields(logger.Fields{
		"artifact": id,
		"calls":    len(resp.Data.StopPlace.EstimatedCalls),
	}).Info("snapshot staged")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
