package biz

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// RatingUseCase handles the add and update workflows
type RatingUseCase struct {
	movieRepo  MovieRepo
	userRepo   UserRepo
	ratingRepo RatingRepo
	tx         Transaction
	log        *log.Helper
}

// NewRatingUseCase creates a new RatingUseCase instance
func NewRatingUseCase(movieRepo MovieRepo, userRepo UserRepo, ratingRepo RatingRepo, tx Transaction, logger log.Logger) *RatingUseCase {
	return &RatingUseCase{
		movieRepo:  movieRepo,
		userRepo:   userRepo,
		ratingRepo: ratingRepo,
		tx:         tx,
		log:        log.NewHelper(log.With(logger, "module", "biz/rating")),
	}
}

// AddMovie adds a movie with the client's rating. When the movie already
// exists the client's rating is added to it, unless the client has rated it
// before, which is ErrMovieAlreadyExists.
func (uc *RatingUseCase) AddMovie(ctx context.Context, clientIP string, body any) (*Movie, error) {
	in, err := uc.validate(body)
	if err != nil {
		return nil, err
	}
	uc.log.WithContext(ctx).Debugf("%s: User adding movie %q with rating %v to movie list", clientIP, in.Title, in.Rating)

	var movie *Movie
	err = uc.tx.InTx(ctx, func(ctx context.Context) error {
		user, err := uc.userRepo.GetOrCreateUser(ctx, clientIP)
		if err != nil {
			return fmt.Errorf("failed to resolve user: %w", err)
		}

		m, res, err := uc.movieRepo.AddMovie(ctx, in.Title, in.Rating)
		if err != nil {
			return fmt.Errorf("failed to add movie: %w", err)
		}

		if res == AlreadyExists {
			_, rated, err := uc.ratingRepo.GetUserRating(ctx, user.ID, m.ID)
			if err != nil {
				return fmt.Errorf("failed to get user rating: %w", err)
			}
			if rated {
				return ErrMovieAlreadyExists
			}
		}

		added, err := uc.ratingRepo.AddRating(ctx, &Rating{UserID: user.ID, MovieID: m.ID, Rating: in.Rating})
		if err != nil {
			return fmt.Errorf("failed to add rating: %w", err)
		}
		if added == AlreadyExists {
			return ErrMovieAlreadyExists
		}

		if res == AlreadyExists {
			if err := uc.recomputeMovieRating(ctx, m); err != nil {
				return err
			}
		}
		movie = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.log.WithContext(ctx).Infof("%s: User added movie %q with rating %v to movie list", clientIP, in.Title, in.Rating)
	return movie, nil
}

// UpdateMovie replaces the client's rating of an existing movie, or sets it
// if the client has not rated it yet.
func (uc *RatingUseCase) UpdateMovie(ctx context.Context, clientIP string, body any) (*Movie, error) {
	in, err := uc.validate(body)
	if err != nil {
		return nil, err
	}
	uc.log.WithContext(ctx).Debugf("%s: User updating movie %q with rating %v in movie list", clientIP, in.Title, in.Rating)

	var movie *Movie
	err = uc.tx.InTx(ctx, func(ctx context.Context) error {
		m, err := uc.movieRepo.GetMovieByTitle(ctx, in.Title)
		if err != nil {
			if errors.Is(err, ErrMovieNotFound) {
				return ErrMovieDoesNotExist
			}
			return fmt.Errorf("failed to get movie: %w", err)
		}

		user, err := uc.userRepo.GetOrCreateUser(ctx, clientIP)
		if err != nil {
			return fmt.Errorf("failed to resolve user: %w", err)
		}

		if err := uc.ratingRepo.UpsertRating(ctx, &Rating{UserID: user.ID, MovieID: m.ID, Rating: in.Rating}); err != nil {
			return fmt.Errorf("failed to upsert rating: %w", err)
		}
		if err := uc.recomputeMovieRating(ctx, m); err != nil {
			return err
		}
		movie = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.log.WithContext(ctx).Infof("%s: User updated movie %q with rating %v in movie list", clientIP, in.Title, in.Rating)
	return movie, nil
}

func (uc *RatingUseCase) validate(body any) (*RatingInput, error) {
	in, err := ParseRatingInput(body)
	if err != nil {
		return nil, err
	}
	if err := CheckRating(in.Rating); err != nil {
		return nil, err
	}
	return in, nil
}

// recomputeMovieRating stores the mean of all ratings of m and mirrors it on m.
func (uc *RatingUseCase) recomputeMovieRating(ctx context.Context, m *Movie) error {
	agg, err := uc.ratingRepo.GetRatingAggregate(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("failed to get rating aggregate: %w", err)
	}
	if agg.Count == 0 {
		return nil
	}
	if err := uc.movieRepo.UpdateMovieRating(ctx, m.ID, agg.Average); err != nil {
		return fmt.Errorf("failed to update movie rating: %w", err)
	}
	m.Rating = agg.Average
	return nil
}
