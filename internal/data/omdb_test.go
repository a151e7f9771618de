package data

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"movieratings/internal/biz"
	"movieratings/internal/conf"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const darkKnightResponse = `{
  "Title": "The Dark Knight",
  "Ratings": [
    {"Source": "Internet Movie Database", "Value": "9.0/10"},
    {"Source": "Rotten Tomatoes", "Value": "94%"},
    {"Source": "Metacritic", "Value": "84/100"}
  ],
  "Response": "True"
}`

// newTestOmdb points an OMDb client at handler and counts the requests it serves.
func newTestOmdb(t *testing.T, maxRetries int, handler http.HandlerFunc) (*omdbClient, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c := &conf.Omdb{
		Enabled:    true,
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Timeout:    conf.Duration(2 * time.Second),
		MaxRetries: maxRetries,
	}
	oc := newOmdbClient(c, nil, log.NewHelper(testLogger))
	oc.backoff = time.Millisecond
	return oc, &calls
}

func TestOmdbFetchRatings(t *testing.T) {
	oc, calls := newTestOmdb(t, 2, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "The Dark Knight", r.URL.Query().Get("t"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		_, _ = w.Write([]byte(darkKnightResponse))
	})

	ratings, err := oc.FetchRatings(context.Background(), "The Dark Knight")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"imdbRating": "9.0", "metascore": "84"}, ratings)
	assert.EqualValues(t, 1, calls.Load())
}

func TestOmdbUnknownTitle(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "response false",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"Response":"False","Error":"Movie not found!"}`))
			},
		},
		{
			name: "status 404",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
		},
		{
			name: "no ratings",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"Response":"True","Ratings":[]}`))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oc, calls := newTestOmdb(t, 2, tt.handler)
			ratings, err := oc.FetchRatings(context.Background(), "NeverMade")
			require.NoError(t, err)
			assert.Empty(t, ratings)
			assert.EqualValues(t, 1, calls.Load())
		})
	}
}

func TestOmdbRetriesServerErrors(t *testing.T) {
	var n atomic.Int32
	oc, calls := newTestOmdb(t, 2, func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(darkKnightResponse))
	})

	ratings, err := oc.FetchRatings(context.Background(), "The Dark Knight")
	require.NoError(t, err)
	assert.Equal(t, "9.0", ratings["imdbRating"])
	assert.EqualValues(t, 3, calls.Load())
}

func TestOmdbDoesNotRetryRejection(t *testing.T) {
	oc, calls := newTestOmdb(t, 2, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := oc.FetchRatings(context.Background(), "The Dark Knight")
	require.Error(t, err)
	assert.Equal(t, biz.ReasonUpstreamUnavailable, kerrors.Reason(err))
	assert.EqualValues(t, 1, calls.Load())
}

func TestOmdbBreakerOpens(t *testing.T) {
	oc, calls := newTestOmdb(t, 0, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := oc.FetchRatings(ctx, "X")
		require.Error(t, err)
	}
	assert.EqualValues(t, 5, calls.Load())
	assert.Equal(t, gobreaker.StateOpen, oc.cb.State())

	_, err := oc.FetchRatings(ctx, "X")
	require.Error(t, err)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.EqualValues(t, 5, calls.Load())
}

func TestOmdbHonoursContext(t *testing.T) {
	oc, _ := newTestOmdb(t, 2, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := oc.FetchRatings(ctx, "Slow")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestNewRatingsFetcherDisabled(t *testing.T) {
	f := NewRatingsFetcher(&conf.Omdb{Enabled: false}, nil, testLogger)
	_, ok := f.(noopFetcher)
	require.True(t, ok)

	ratings, err := f.FetchRatings(context.Background(), "Anything")
	require.NoError(t, err)
	assert.Empty(t, ratings)
}
