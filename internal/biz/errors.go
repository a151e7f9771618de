package biz

import (
	"fmt"

	"github.com/go-kratos/kratos/v2/errors"
)

// Error reasons surfaced in the "code" field of the error envelope.
const (
	ReasonInvalidSchema       = "INVALID_SCHEMA"
	ReasonRatingOutOfRange    = "RATING_OUT_OF_RANGE"
	ReasonLimitOutOfRange     = "LIMIT_OUT_OF_RANGE"
	ReasonMovieAlreadyExists  = "MOVIE_ALREADY_EXISTS"
	ReasonMovieDoesNotExist   = "MOVIE_DOES_NOT_EXIST"
	ReasonMovieNotFound       = "MOVIE_NOT_FOUND"
	ReasonUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
)

const (
	ratingRangeMessage = "Rating must be between %d and %d!"
	limitRangeMessage  = "Number of movies to return must be between %d and %d!"
	movieByIDMessage   = "Movie does not exist with id %d!"
)

// Custom errors
var (
	// ErrMovieNotFound is returned by repositories when no movie matched.
	ErrMovieNotFound = errors.NotFound(ReasonMovieNotFound, "movie not found")
	// ErrMovieAlreadyExists rejects an add from a client that already rated the movie.
	ErrMovieAlreadyExists = errors.BadRequest(ReasonMovieAlreadyExists,
		"Movie already exists and has your rating, use PUT to update it!")
	// ErrMovieDoesNotExist rejects an update of a movie that was never added.
	ErrMovieDoesNotExist = errors.BadRequest(ReasonMovieDoesNotExist,
		"Movie does not exist, use POST to add it!")
	// ErrUpstreamUnavailable marks a failed third-party lookup.
	ErrUpstreamUnavailable = errors.ServiceUnavailable(ReasonUpstreamUnavailable,
		"third-party ratings unavailable")
)

// SchemaError describes the first violation of the request body schema.
func SchemaError(detail string) *errors.Error {
	return errors.BadRequest(ReasonInvalidSchema, detail)
}

// RatingRangeError is returned for ratings outside [RatingMin, RatingMax].
func RatingRangeError() *errors.Error {
	return errors.BadRequest(ReasonRatingOutOfRange, fmt.Sprintf(ratingRangeMessage, RatingMin, RatingMax))
}

// LimitRangeError is returned for list limits outside [min, max].
func LimitRangeError(min, max int) *errors.Error {
	return errors.BadRequest(ReasonLimitOutOfRange, fmt.Sprintf(limitRangeMessage, min, max))
}

// MovieIDNotFoundError is the client-facing form of ErrMovieNotFound for lookups by id.
func MovieIDNotFoundError(id int64) *errors.Error {
	return errors.BadRequest(ReasonMovieNotFound, fmt.Sprintf(movieByIDMessage, id))
}

func IsSchemaError(err error) bool { return errors.Reason(err) == ReasonInvalidSchema }

func IsRangeError(err error) bool {
	r := errors.Reason(err)
	return r == ReasonRatingOutOfRange || r == ReasonLimitOutOfRange
}
