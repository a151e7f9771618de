package biz

import (
	"context"
	"fmt"
	"time"

	"movieratings/internal/conf"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/sync/errgroup"
)

// MovieUseCase handles movie listing and lookup, merging third-party ratings
type MovieUseCase struct {
	repo         MovieRepo
	fetcher      RatingsFetcher
	limits       *conf.Movies
	fetchTimeout time.Duration
	log          *log.Helper
}

// NewMovieUseCase creates a new MovieUseCase instance
func NewMovieUseCase(repo MovieRepo, fetcher RatingsFetcher, limits *conf.Movies, omdb *conf.Omdb, logger log.Logger) *MovieUseCase {
	return &MovieUseCase{
		repo:         repo,
		fetcher:      fetcher,
		limits:       limits,
		fetchTimeout: omdb.FetchTimeout.AsDuration(),
		log:          log.NewHelper(log.With(logger, "module", "biz/movie")),
	}
}

// ListMovies returns up to limit movies, newest first. A nil limit selects the
// configured default.
func (uc *MovieUseCase) ListMovies(ctx context.Context, clientIP string, limit *int) ([]*MovieDetail, error) {
	n := uc.limits.ListDefault
	if limit != nil {
		if err := CheckListLimit(*limit, uc.limits.ListMin, uc.limits.ListMax); err != nil {
			return nil, err
		}
		n = *limit
	}

	uc.log.WithContext(ctx).Debugf("%s: Attempting to access movie list", clientIP)

	movies, err := uc.repo.ListMovies(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("failed to list movies: %w", err)
	}
	details := uc.enrich(ctx, movies)

	uc.log.WithContext(ctx).Debugf("%s: User accessed movie list", clientIP)
	return details, nil
}

// GetMovie returns one movie by id
func (uc *MovieUseCase) GetMovie(ctx context.Context, clientIP string, id int64) (*MovieDetail, error) {
	uc.log.WithContext(ctx).Debugf("%s: User attempting to access movie by id %d", clientIP, id)

	movie, err := uc.repo.GetMovie(ctx, id)
	if err != nil {
		if errors.Is(err, ErrMovieNotFound) {
			return nil, MovieIDNotFoundError(id)
		}
		return nil, fmt.Errorf("failed to get movie: %w", err)
	}
	detail := uc.enrich(ctx, []*Movie{movie})[0]

	uc.log.WithContext(ctx).Infof("%s: User accessed movie %q by id %d", clientIP, movie.Title, id)
	return detail, nil
}

// enrich merges third-party ratings into every movie. Lookups run in
// parallel, bounded by the configured concurrency, and each one is cut off
// after the fetch timeout. A failed lookup leaves that movie unenriched.
func (uc *MovieUseCase) enrich(ctx context.Context, movies []*Movie) []*MovieDetail {
	details := make([]*MovieDetail, len(movies))
	var g errgroup.Group
	g.SetLimit(uc.limits.EnrichConcurrency)
	for i, m := range movies {
		details[i] = &MovieDetail{Movie: m}
		if uc.fetcher == nil {
			continue
		}
		g.Go(func() error {
			fctx := ctx
			if uc.fetchTimeout > 0 {
				var cancel context.CancelFunc
				fctx, cancel = context.WithTimeout(ctx, uc.fetchTimeout)
				defer cancel()
			}
			ratings, err := uc.fetcher.FetchRatings(fctx, m.Title)
			if err != nil {
				uc.log.WithContext(ctx).Warnf("third-party ratings for %q unavailable: %v", m.Title, err)
				return nil
			}
			details[i].ThirdParty = ratings
			return nil
		})
	}
	_ = g.Wait()
	return details
}
