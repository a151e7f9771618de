package service

import (
	"context"
	"strconv"

	"movieratings/internal/biz"
	"movieratings/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
)

// MovieService implements the movie HTTP API
type MovieService struct {
	movieUC  *biz.MovieUseCase
	ratingUC *biz.RatingUseCase
	limits   *conf.Movies
	log      *log.Helper
}

// NewMovieService creates a new MovieService
func NewMovieService(movieUC *biz.MovieUseCase, ratingUC *biz.RatingUseCase, limits *conf.Movies, logger log.Logger) *MovieService {
	return &MovieService{
		movieUC:  movieUC,
		ratingUC: ratingUC,
		limits:   limits,
		log:      log.NewHelper(log.With(logger, "module", "service/movie")),
	}
}

// ListMovies implements movie listing
func (s *MovieService) ListMovies(ctx context.Context, req *ListMoviesRequest) (*ListMoviesReply, error) {
	var limit *int
	if req.Limit != "" {
		n, err := strconv.Atoi(req.Limit)
		if err != nil {
			return nil, biz.LimitRangeError(s.limits.ListMin, s.limits.ListMax)
		}
		limit = &n
	}

	details, err := s.movieUC.ListMovies(ctx, ClientAddrFromContext(ctx), limit)
	if err != nil {
		return nil, err
	}

	reply := &ListMoviesReply{
		Movies: make([]*MovieView, 0, len(details)),
	}
	for _, d := range details {
		reply.Movies = append(reply.Movies, detailToView(d))
	}
	return reply, nil
}

// GetMovie implements lookup by id
func (s *MovieService) GetMovie(ctx context.Context, req *GetMovieRequest) (*MovieView, error) {
	detail, err := s.movieUC.GetMovie(ctx, ClientAddrFromContext(ctx), req.ID)
	if err != nil {
		return nil, err
	}
	return detailToView(detail), nil
}

// AddMovie implements movie creation
func (s *MovieService) AddMovie(ctx context.Context, req *MoviePayload) (*MovieView, error) {
	movie, err := s.ratingUC.AddMovie(ctx, ClientAddrFromContext(ctx), req.Body)
	if err != nil {
		return nil, err
	}
	return movieToView(movie), nil
}

// UpdateMovie implements rating updates
func (s *MovieService) UpdateMovie(ctx context.Context, req *MoviePayload) (*MovieView, error) {
	movie, err := s.ratingUC.UpdateMovie(ctx, ClientAddrFromContext(ctx), req.Body)
	if err != nil {
		return nil, err
	}
	return movieToView(movie), nil
}

// HealthCheck implements health check
func (s *MovieService) HealthCheck(ctx context.Context, _ *HealthCheckRequest) (*HealthCheckReply, error) {
	return &HealthCheckReply{Status: "ok"}, nil
}

// Helper functions

func movieToView(m *biz.Movie) *MovieView {
	return &MovieView{ID: m.ID, Title: m.Title, Rating: m.Rating}
}

func detailToView(d *biz.MovieDetail) *MovieView {
	v := movieToView(d.Movie)
	v.ThirdParty = d.ThirdParty
	return v
}
