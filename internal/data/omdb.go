package data

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"movieratings/internal/biz"
	"movieratings/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// omdbSources maps the OMDb rating sources we merge to their response keys.
var omdbSources = map[string]string{
	"Internet Movie Database": "imdbRating",
	"Metacritic":              "metascore",
}

var (
	errOmdbNotFound = errors.New("not found")
	errOmdbRejected = errors.New("request rejected")
)

var (
	omdbRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "movieratings",
		Subsystem: "omdb",
		Name:      "requests_total",
		Help:      "Third-party rating lookups by outcome.",
	}, []string{"outcome"})

	omdbBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "movieratings",
		Subsystem: "omdb",
		Name:      "circuit_breaker_state",
		Help:      "0 = closed, 1 = half-open, 2 = open.",
	})
)

type omdbClient struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	maxRetries int
	backoff    time.Duration
	limiter    *rate.Limiter
	cb         *gobreaker.CircuitBreaker[map[string]string]
	rdb        *redis.Client
	cacheTTL   time.Duration
	log        *log.Helper
}

type noopFetcher struct{}

func (noopFetcher) FetchRatings(context.Context, string) (map[string]string, error) {
	return map[string]string{}, nil
}

// NewRatingsFetcher creates the OMDb ratings client, or a fetcher that never
// enriches when OMDb is disabled.
func NewRatingsFetcher(c *conf.Omdb, rdb *redis.Client, logger log.Logger) biz.RatingsFetcher {
	l := log.NewHelper(log.With(logger, "module", "data/omdb"))
	if !c.Enabled {
		l.Info("omdb disabled, third-party ratings will not be merged")
		return noopFetcher{}
	}
	if c.APIKey == "" {
		l.Warn("omdb api key is empty, lookups will likely be rejected")
	}
	return newOmdbClient(c, rdb, l)
}

func newOmdbClient(c *conf.Omdb, rdb *redis.Client, l *log.Helper) *omdbClient {
	oc := &omdbClient{
		client: &http.Client{
			Timeout: c.Timeout.AsDuration(),
		},
		baseURL:    strings.TrimRight(c.BaseURL, "/"),
		apiKey:     c.APIKey,
		maxRetries: c.MaxRetries,
		backoff:    100 * time.Millisecond,
		rdb:        rdb,
		cacheTTL:   c.CacheTTL.AsDuration(),
		log:        l,
	}
	if c.RateLimit > 0 {
		burst := c.Burst
		if burst < 1 {
			burst = 1
		}
		oc.limiter = rate.NewLimiter(rate.Limit(c.RateLimit), burst)
	}

	omdbBreakerState.Set(0)
	oc.cb = gobreaker.NewCircuitBreaker[map[string]string](gobreaker.Settings{
		Name:        "omdb",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// a caller giving up is not a sign of an unhealthy upstream
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.Warnf("circuit breaker %s: %s -> %s", name, from, to)
			switch to {
			case gobreaker.StateClosed:
				omdbBreakerState.Set(0)
			case gobreaker.StateHalfOpen:
				omdbBreakerState.Set(1)
			case gobreaker.StateOpen:
				omdbBreakerState.Set(2)
			}
		},
	})
	return oc
}

func ratingsCacheKey(title string) string {
	return "omdb:ratings:" + title
}

// FetchRatings returns the allow-listed ratings OMDb has for title. A title
// OMDb does not know yields an empty map and no error.
func (c *omdbClient) FetchRatings(ctx context.Context, title string) (map[string]string, error) {
	if ratings, ok := c.cached(ctx, title); ok {
		omdbRequests.WithLabelValues("cache_hit").Inc()
		return ratings, nil
	}

	ratings, err := c.cb.Execute(func() (map[string]string, error) {
		return c.fetchWithRetry(ctx, title)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			omdbRequests.WithLabelValues("rejected").Inc()
		} else {
			omdbRequests.WithLabelValues("failure").Inc()
		}
		return nil, biz.ErrUpstreamUnavailable.WithCause(err)
	}

	omdbRequests.WithLabelValues("success").Inc()
	c.store(ctx, title, ratings)
	return ratings, nil
}

func (c *omdbClient) fetchWithRetry(ctx context.Context, title string) (map[string]string, error) {
	var lastErr error

	// Retry logic with linear backoff
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * c.backoff):
			}
			c.log.Infof("retrying omdb request for '%s', attempt %d/%d", title, attempt, c.maxRetries)
		}

		ratings, err := c.doRequest(ctx, title)
		if err == nil {
			return ratings, nil
		}
		if errors.Is(err, errOmdbNotFound) {
			return map[string]string{}, nil
		}

		lastErr = err
		if errors.Is(err, errOmdbRejected) || ctx.Err() != nil {
			break
		}
	}

	c.log.Warnf("omdb request for '%s' failed after %d attempts: %v", title, c.maxRetries+1, lastErr)
	return nil, lastErr
}

func (c *omdbClient) doRequest(ctx context.Context, title string) (map[string]string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	query := url.Values{}
	query.Set("t", title)
	query.Set("apikey", c.apiKey)
	endpoint := c.baseURL + "/?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errOmdbNotFound
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, fmt.Errorf("%w: status code %d", errOmdbRejected, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var response struct {
		Response string `json:"Response"`
		Error    string `json:"Error"`
		Ratings  []struct {
			Source string `json:"Source"`
			Value  string `json:"Value"`
		} `json:"Ratings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if strings.EqualFold(response.Response, "False") {
		c.log.Debugf("omdb has no data for '%s': %s", title, response.Error)
		return nil, errOmdbNotFound
	}

	ratings := make(map[string]string, len(omdbSources))
	for _, r := range response.Ratings {
		key, ok := omdbSources[r.Source]
		if !ok {
			continue
		}
		// "8.3/10" -> "8.3", "70/100" -> "70"
		value, _, _ := strings.Cut(r.Value, "/")
		ratings[key] = value
	}
	return ratings, nil
}

func (c *omdbClient) cached(ctx context.Context, title string) (map[string]string, bool) {
	if c.rdb == nil {
		return nil, false
	}
	cached, err := c.rdb.Get(ctx, ratingsCacheKey(title)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Debugf("omdb cache read for '%s' failed: %v", title, err)
		}
		return nil, false
	}
	var ratings map[string]string
	if err := json.Unmarshal([]byte(cached), &ratings); err != nil {
		return nil, false
	}
	return ratings, true
}

func (c *omdbClient) store(ctx context.Context, title string, ratings map[string]string) {
	if c.rdb == nil {
		return
	}
	if data, err := json.Marshal(ratings); err == nil {
		c.rdb.Set(ctx, ratingsCacheKey(title), data, c.cacheTTL)
	}
}
