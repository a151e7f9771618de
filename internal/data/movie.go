package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"movieratings/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/goccy/go-json"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const movieCacheTTL = 15 * time.Minute

type movieRepo struct {
	data *Data
	log  *log.Helper
}

// NewMovieRepo creates a new movie repository
func NewMovieRepo(data *Data, logger log.Logger) biz.MovieRepo {
	return &movieRepo{
		data: data,
		log:  log.NewHelper(log.With(logger, "module", "data/movie")),
	}
}

func movieCacheKey(id int64) string {
	return fmt.Sprintf("movie:%d", id)
}

func (r *movieRepo) ListMovies(ctx context.Context, limit int) ([]*biz.Movie, error) {
	var dbMovies []Movie
	err := r.data.DB(ctx).Order("id DESC").Limit(limit).Find(&dbMovies).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list movies: %w", err)
	}

	movies := make([]*biz.Movie, 0, len(dbMovies))
	for i := range dbMovies {
		movies = append(movies, movieToBiz(&dbMovies[i]))
	}
	return movies, nil
}

func (r *movieRepo) GetMovie(ctx context.Context, id int64) (*biz.Movie, error) {
	// Try cache first if Redis is available
	if r.data.rdb != nil {
		cached, err := r.data.rdb.Get(ctx, movieCacheKey(id)).Result()
		if err == nil {
			var movie biz.Movie
			if err := json.Unmarshal([]byte(cached), &movie); err == nil {
				r.log.Debugf("cache hit for movie: %d", id)
				return &movie, nil
			}
		}
	}

	var dbMovie Movie
	if err := r.data.DB(ctx).Where("id = ?", id).First(&dbMovie).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, biz.ErrMovieNotFound
		}
		return nil, fmt.Errorf("failed to get movie %d: %w", id, err)
	}
	movie := movieToBiz(&dbMovie)

	if r.data.rdb != nil {
		if data, err := json.Marshal(movie); err == nil {
			r.data.rdb.Set(ctx, movieCacheKey(id), data, movieCacheTTL)
		}
	}
	return movie, nil
}

func (r *movieRepo) GetMovieByTitle(ctx context.Context, title string) (*biz.Movie, error) {
	var dbMovie Movie
	// inside a unit of work the row stays locked so concurrent raters of
	// one movie recompute its mean one after another
	if err := r.data.ForUpdate(ctx).Where("title = ?", title).First(&dbMovie).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, biz.ErrMovieNotFound
		}
		return nil, fmt.Errorf("failed to get movie %q: %w", title, err)
	}
	return movieToBiz(&dbMovie), nil
}

func (r *movieRepo) AddMovie(ctx context.Context, title string, rating float64) (*biz.Movie, biz.AddResult, error) {
	dbMovie := &Movie{Title: title, Rating: rating}

	// The unique index on title decides; a losing insert affects no rows.
	result := r.data.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "title"}},
		DoNothing: true,
	}).Create(dbMovie)
	if result.Error != nil {
		return nil, biz.Created, fmt.Errorf("failed to create movie: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return movieToBiz(dbMovie), biz.Created, nil
	}

	existing, err := r.GetMovieByTitle(ctx, title)
	if err != nil {
		return nil, biz.AlreadyExists, err
	}
	return existing, biz.AlreadyExists, nil
}

func (r *movieRepo) UpdateMovieRating(ctx context.Context, id int64, rating float64) error {
	result := r.data.DB(ctx).Model(&Movie{}).Where("id = ?", id).Update("rating", rating)
	if result.Error != nil {
		return fmt.Errorf("failed to update movie: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return biz.ErrMovieNotFound
	}
	r.invalidate(ctx, id)
	return nil
}

func (r *movieRepo) DeleteMovie(ctx context.Context, id int64) error {
	err := r.data.InTx(ctx, func(ctx context.Context) error {
		if err := r.data.DB(ctx).Where("movie_id = ?", id).Delete(&Rating{}).Error; err != nil {
			return fmt.Errorf("failed to delete ratings: %w", err)
		}
		result := r.data.DB(ctx).Delete(&Movie{}, id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete movie: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return biz.ErrMovieNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.invalidate(ctx, id)
	return nil
}

// invalidate drops the cached copy of a movie once the change is committed.
func (r *movieRepo) invalidate(ctx context.Context, id int64) {
	if r.data.rdb == nil {
		return
	}
	r.data.AfterCommit(ctx, func() {
		r.data.rdb.Del(context.WithoutCancel(ctx), movieCacheKey(id))
	})
}
