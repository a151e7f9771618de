//go:build integration

package data

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"sync/atomic"
	"testing"
	"time"

	"movieratings/internal/biz"
	"movieratings/internal/conf"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func skipIfNoDocker(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if exec.CommandContext(ctx, "docker", "info").Run() != nil {
		t.Skip("Skipping test: Docker not available")
	}
}

func startContainer(t *testing.T, req testcontainers.ContainerRequest) (string, string) {
	t.Helper()
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, nat.Port(req.ExposedPorts[0]))
	require.NoError(t, err)
	return host, port.Port()
}

func startPostgres(t *testing.T) *conf.Data {
	t.Helper()
	host, port := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "movieratings",
			"POSTGRES_PASSWORD": "movieratings",
			"POSTGRES_DB":       "movieratings",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute),
	})
	return &conf.Data{
		Driver: conf.DriverPostgres,
		Database: &conf.Database{
			Source: fmt.Sprintf("host=%s port=%s user=movieratings password=movieratings dbname=movieratings sslmode=disable",
				host, port),
			AutoMigrate:     true,
			MaxIdleConns:    2,
			MaxOpenConns:    10,
			ConnMaxLifetime: conf.Duration(time.Hour),
		},
	}
}

func startRedis(t *testing.T) *conf.Redis {
	t.Helper()
	host, port := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(time.Minute),
	})
	return &conf.Redis{
		Addr:         host + ":" + port,
		ReadTimeout:  conf.Duration(time.Second),
		WriteTimeout: conf.Duration(time.Second),
	}
}

func TestPostgresStore(t *testing.T) {
	skipIfNoDocker(t)
	ctx := context.Background()
	c := startPostgres(t)
	c.Redis = startRedis(t)

	rdb, closeRedis, err := NewRedis(c, testLogger)
	require.NoError(t, err)
	require.NotNil(t, rdb)
	t.Cleanup(closeRedis)

	s, cleanup, err := NewStore(c, rdb, testLogger)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	m, res, err := s.Movies.AddMovie(ctx, "The Dark Knight", 3)
	require.NoError(t, err)
	assert.Equal(t, biz.Created, res)

	// a read fills the redis cache and an update drops it
	_, err = s.Movies.GetMovie(ctx, m.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rdb.Exists(ctx, movieCacheKey(m.ID)).Val())
	require.NoError(t, s.Movies.UpdateMovieRating(ctx, m.ID, 4))
	assert.EqualValues(t, 0, rdb.Exists(ctx, movieCacheKey(m.ID)).Val())

	// concurrent adds of one title from many clients leave one movie and
	// one rating per client
	rating := biz.NewRatingUseCase(s.Movies, s.Users, s.Ratings, s.Tx, testLogger)
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func(i int) {
			_, err := rating.AddMovie(ctx, fmt.Sprintf("192.0.2.%d", i), map[string]any{"title": "Race", "rating": 2.0})
			errs <- err
		}(i)
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-errs)
	}
	race, err := s.Movies.GetMovieByTitle(ctx, "Race")
	require.NoError(t, err)
	agg, err := s.Ratings.GetRatingAggregate(ctx, race.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(8), agg.Count)
	assert.Equal(t, 2.0, agg.Average)
}

func TestMovieCacheInvalidatedAfterCommit(t *testing.T) {
	skipIfNoDocker(t)
	ctx := context.Background()
	c := startPostgres(t)
	c.Redis = startRedis(t)

	rdb, closeRedis, err := NewRedis(c, testLogger)
	require.NoError(t, err)
	require.NotNil(t, rdb)
	t.Cleanup(closeRedis)

	d, cleanup, err := NewData(c, rdb, testLogger)
	require.NoError(t, err)
	t.Cleanup(cleanup)
	require.NoError(t, d.Migrate(ctx))
	movies := NewMovieRepo(d, testLogger)

	m, _, err := movies.AddMovie(ctx, "X", 4)
	require.NoError(t, err)
	_, err = movies.GetMovie(ctx, m.ID)
	require.NoError(t, err)

	err = d.InTx(ctx, func(txCtx context.Context) error {
		if err := movies.UpdateMovieRating(txCtx, m.ID, 2); err != nil {
			return err
		}
		// a reader outside the unit of work still sees and caches the old row
		during, err := movies.GetMovie(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, 4.0, during.Rating)
		return nil
	})
	require.NoError(t, err)

	after, err := movies.GetMovie(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, after.Rating)
}

func TestConcurrentRatersKeepMean(t *testing.T) {
	skipIfNoDocker(t)
	ctx := context.Background()
	s, cleanup, err := NewStore(startPostgres(t), nil, testLogger)
	require.NoError(t, err)
	t.Cleanup(cleanup)
	rating := biz.NewRatingUseCase(s.Movies, s.Users, s.Ratings, s.Tx, testLogger)

	_, err = rating.AddMovie(ctx, "192.0.2.200", map[string]any{"title": "Contended", "rating": 3.0})
	require.NoError(t, err)

	const raters = 10
	errs := make(chan error, raters)
	for i := 0; i < raters; i++ {
		go func(i int) {
			body := map[string]any{"title": "Contended", "rating": float64(i%2*4 + 1)}
			var err error
			if i%3 == 0 {
				_, err = rating.UpdateMovie(ctx, fmt.Sprintf("192.0.2.%d", i), body)
			} else {
				_, err = rating.AddMovie(ctx, fmt.Sprintf("192.0.2.%d", i), body)
			}
			errs <- err
		}(i)
	}
	for i := 0; i < raters; i++ {
		require.NoError(t, <-errs)
	}

	m, err := s.Movies.GetMovieByTitle(ctx, "Contended")
	require.NoError(t, err)
	agg, err := s.Ratings.GetRatingAggregate(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(raters+1), agg.Count)
	// 5 raters at 1, 5 at 5 and the first at 3
	assert.InDelta(t, 33.0/11.0, agg.Average, 1e-9)
	assert.InDelta(t, agg.Average, m.Rating, 1e-9)
}

func TestOmdbRedisCache(t *testing.T) {
	skipIfNoDocker(t)
	ctx := context.Background()
	rdb, closeRedis, err := NewRedis(&conf.Data{Redis: startRedis(t)}, testLogger)
	require.NoError(t, err)
	require.NotNil(t, rdb)
	t.Cleanup(closeRedis)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(darkKnightResponse))
	}))
	t.Cleanup(srv.Close)

	f := NewRatingsFetcher(&conf.Omdb{
		Enabled:  true,
		BaseURL:  srv.URL,
		Timeout:  conf.Duration(time.Second),
		CacheTTL: conf.Duration(time.Minute),
	}, rdb, testLogger)

	for i := 0; i < 3; i++ {
		ratings, err := f.FetchRatings(ctx, "The Dark Knight")
		require.NoError(t, err)
		assert.Equal(t, "84", ratings["metascore"])
	}
	assert.EqualValues(t, 1, calls.Load())
	assert.Greater(t, rdb.TTL(ctx, ratingsCacheKey("The Dark Knight")).Val(), time.Duration(0))
}
