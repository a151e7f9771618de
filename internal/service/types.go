package service

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/google/wire"
)

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewMovieService)

// ListMoviesRequest carries the raw limit query parameter ("" when absent).
type ListMoviesRequest struct {
	Limit string
}

type ListMoviesReply struct {
	Movies []*MovieView `json:"Movies"`
}

type GetMovieRequest struct {
	ID int64
}

// MoviePayload is an undecoded-by-schema add/update body; the biz layer
// validates its shape.
type MoviePayload struct {
	Body any
}

type HealthCheckRequest struct{}

type HealthCheckReply struct {
	Status string `json:"status"`
}

// MovieView is a movie with its third-party ratings flattened next to the
// base fields, e.g. {"id":1,"title":"X","rating":4,"imdbRating":"8.3"}.
type MovieView struct {
	ID         int64
	Title      string
	Rating     float64
	ThirdParty map[string]string
}

func (v *MovieView) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 3+len(v.ThirdParty))
	for k, val := range v.ThirdParty {
		out[k] = val
	}
	out["id"] = v.ID
	out["title"] = v.Title
	out["rating"] = v.Rating
	return json.Marshal(out)
}

type clientAddrKey struct{}

// NewClientAddrContext stores the requester's address in ctx.
func NewClientAddrContext(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, clientAddrKey{}, addr)
}

// ClientAddrFromContext returns the requester's address, "" if unknown.
func ClientAddrFromContext(ctx context.Context) string {
	addr, _ := ctx.Value(clientAddrKey{}).(string)
	return addr
}
