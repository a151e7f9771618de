package data

import (
	"context"
	"errors"
	"fmt"

	"movieratings/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ratingRepo struct {
	data *Data
	log  *log.Helper
}

// NewRatingRepo creates a new rating repository
func NewRatingRepo(data *Data, logger log.Logger) biz.RatingRepo {
	return &ratingRepo{
		data: data,
		log:  log.NewHelper(log.With(logger, "module", "data/rating")),
	}
}

var ratingKey = []clause.Column{{Name: "user_id"}, {Name: "movie_id"}}

func (r *ratingRepo) GetUserRating(ctx context.Context, userID, movieID int64) (float64, bool, error) {
	var dbRating Rating
	err := r.data.DB(ctx).
		Where("user_id = ? AND movie_id = ?", userID, movieID).
		First(&dbRating).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get rating: %w", err)
	}
	return dbRating.Rating, true, nil
}

func (r *ratingRepo) AddRating(ctx context.Context, rating *biz.Rating) (biz.AddResult, error) {
	result := r.data.DB(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   ratingKey,
		DoNothing: true,
	}).Create(r.bizToModel(rating))
	if result.Error != nil {
		return biz.Created, fmt.Errorf("failed to add rating: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return biz.AlreadyExists, nil
	}
	return biz.Created, nil
}

func (r *ratingRepo) UpsertRating(ctx context.Context, rating *biz.Rating) error {
	// Use GORM's ON CONFLICT clause for upsert
	result := r.data.DB(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   ratingKey,
		DoUpdates: clause.AssignmentColumns([]string{"rating", "updated_at"}),
	}).Create(r.bizToModel(rating))
	if result.Error != nil {
		return fmt.Errorf("failed to upsert rating: %w", result.Error)
	}
	return nil
}

// GetRatingAggregate averages and counts the ratings of one movie only.
func (r *ratingRepo) GetRatingAggregate(ctx context.Context, movieID int64) (*biz.RatingAggregate, error) {
	var result struct {
		Average float64
		Count   int64
	}

	err := r.data.DB(ctx).
		Model(&Rating{}).
		Select("COALESCE(AVG(rating), 0) AS average, COUNT(*) AS count").
		Where("movie_id = ?", movieID).
		Scan(&result).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get rating aggregate: %w", err)
	}

	return &biz.RatingAggregate{
		Average: result.Average,
		Count:   result.Count,
	}, nil
}

func (r *ratingRepo) bizToModel(rating *biz.Rating) *Rating {
	return &Rating{
		UserID:  rating.UserID,
		MovieID: rating.MovieID,
		Rating:  rating.Rating,
	}
}
