package entur

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	appconfig "github.com/vegardkv/travelpredict/config"
	"github.com/vegardkv/travelpredict/logger"
	"github.com/vegardkv/travelpredict/models"
)

// FetchError reports a failed poll of the journey-planner feed: either a
// transport level failure or a non-success HTTP status.
type FetchError struct {
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("feed returned status %d", e.Status)
	}
	return fmt.Sprintf("feed request failed: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client posts GraphQL queries to the journey-planner endpoint. Requests are
// rate limited client side and identified with the ET-Client-Name header the
// feed operator requires.
type Client struct {
	httpClient *http.Client
	url        string
	clientName string
	limiter    *rate.Limiter
	log        *logger.Log
}

func NewClient(cfg *appconfig.Config) *Client {
	log := logger.GetLogger()

	transport := &http.Transport{
		MaxIdleConns:       4,
		IdleConnTimeout:    90 * time.Second,
		DisableCompression: false,
	}

	httpClient := &http.Client{
		Transport: transport,
		Timeout:   cfg.Feed.Timeout,
	}

	rps := cfg.Feed.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.Feed.RateLimit.BurstSize
	if burst < 1 {
		burst = 1
	}

	client := &Client{
		httpClient: httpClient,
		url:        cfg.Feed.URL,
		clientName: cfg.Feed.ClientName,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		log:        log,
	}

	log.WithComponent("feed_client").WithFields(logger.Fields{
		"url":     cfg.Feed.URL,
		"timeout": cfg.Feed.Timeout,
	}).Info("feed client initialized")

	return client
}

// Fetch executes one GraphQL query and decodes the response envelope. A
// non-200 status or transport failure comes back as a *FetchError; a body
// that does not match the feed schema is reported as a decode error.
func (c *Client) Fetch(ctx context.Context, query string) (*models.FeedResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, fmt.Errorf("marshal query payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("ET-Client-Name", c.clientName)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	defer resp.Body.Close()

	logger.LogPerformanceEntry(c.log.WithComponent("feed_client"), "feed_client", "graphql_request", time.Since(start), nil)

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Status: resp.StatusCode}
	}

	var feedResp models.FeedResponse
	if err := json.NewDecoder(resp.Body).Decode(&feedResp); err != nil {
		return nil, fmt.Errorf("decode feed response: %w", err)
	}

	return &feedResp, nil
}
