package biz

import "context"

// Movie domain model
type Movie struct {
	ID     int64
	Title  string
	Rating float64
}

// MovieDetail is a movie merged with its third-party ratings
type MovieDetail struct {
	*Movie
	ThirdParty map[string]string
}

// User is identified by the client address it connects from
type User struct {
	ID       int64
	ClientIP string
}

// Rating domain model, at most one per (UserID, MovieID)
type Rating struct {
	UserID  int64
	MovieID int64
	Rating  float64
}

// RatingAggregate represents the aggregated rating of one movie
type RatingAggregate struct {
	Average float64
	Count   int64
}

// RatingInput is a validated add/update request body
type RatingInput struct {
	Title  string
	Rating float64
}

// AddResult reports whether an insert created a row or hit an existing one.
type AddResult int

const (
	Created AddResult = iota
	AlreadyExists
)

func (r AddResult) String() string {
	switch r {
	case Created:
		return "created"
	case AlreadyExists:
		return "already_exists"
	default:
		return "unknown"
	}
}

// MovieRepo defines the repository interface for movies
type MovieRepo interface {
	ListMovies(ctx context.Context, limit int) ([]*Movie, error)
	GetMovie(ctx context.Context, id int64) (*Movie, error)
	GetMovieByTitle(ctx context.Context, title string) (*Movie, error)
	// AddMovie inserts the movie unless the title is taken, in which case the
	// existing row is returned unchanged.
	AddMovie(ctx context.Context, title string, rating float64) (*Movie, AddResult, error)
	UpdateMovieRating(ctx context.Context, id int64, rating float64) error
	DeleteMovie(ctx context.Context, id int64) error
}

// UserRepo defines the repository interface for users
type UserRepo interface {
	GetOrCreateUser(ctx context.Context, clientIP string) (*User, error)
	DeleteUser(ctx context.Context, id int64) error
}

// RatingRepo defines the repository interface for per-user ratings
type RatingRepo interface {
	GetUserRating(ctx context.Context, userID, movieID int64) (float64, bool, error)
	AddRating(ctx context.Context, rating *Rating) (AddResult, error)
	UpsertRating(ctx context.Context, rating *Rating) error
	GetRatingAggregate(ctx context.Context, movieID int64) (*RatingAggregate, error)
}

// Transaction runs fn as one unit of work: committed when fn returns nil,
// rolled back otherwise.
type Transaction interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// RatingsFetcher looks up third-party ratings by title. An empty map means no
// data; errors are degraded by the caller.
type RatingsFetcher interface {
	FetchRatings(ctx context.Context, title string) (map[string]string, error)
}
