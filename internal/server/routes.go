package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"movieratings/internal/biz"
	"movieratings/internal/service"

	"github.com/go-kratos/kratos/v2/errors"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
	"github.com/goccy/go-json"
)

// ReasonBodyTooLarge rejects add/update bodies over maxBodyBytes.
const ReasonBodyTooLarge = "BODY_TOO_LARGE"

// Operation names reported to middleware.
const (
	OperationListMovies  = "/movieratings.v1.MovieService/ListMovies"
	OperationGetMovie    = "/movieratings.v1.MovieService/GetMovie"
	OperationAddMovie    = "/movieratings.v1.MovieService/AddMovie"
	OperationUpdateMovie = "/movieratings.v1.MovieService/UpdateMovie"
	OperationHealthCheck = "/movieratings.v1.MovieService/HealthCheck"
)

// RegisterMovieHTTPServer binds the movie routes to s.
func RegisterMovieHTTPServer(s *khttp.Server, svc *service.MovieService) {
	r := s.Route("/")
	r.GET("/movies", listMoviesHandler(svc))
	r.POST("/movies", addMovieHandler(svc))
	r.PUT("/movies", updateMovieHandler(svc))
	r.GET("/movies/{id:[0-9]+}", getMovieHandler(svc))
	r.GET("/healthz", healthCheckHandler(svc))
}

func listMoviesHandler(svc *service.MovieService) khttp.HandlerFunc {
	return func(ctx khttp.Context) error {
		in := service.ListMoviesRequest{Limit: ctx.Query().Get("limit")}
		khttp.SetOperation(ctx, OperationListMovies)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return svc.ListMovies(ctx, req.(*service.ListMoviesRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(http.StatusOK, out)
	}
}

func getMovieHandler(svc *service.MovieService) khttp.HandlerFunc {
	return func(ctx khttp.Context) error {
		raw := ctx.Vars().Get("id")
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return errors.BadRequest(biz.ReasonMovieNotFound, fmt.Sprintf("Movie does not exist with id %s!", raw))
		}
		in := service.GetMovieRequest{ID: id}
		khttp.SetOperation(ctx, OperationGetMovie)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return svc.GetMovie(ctx, req.(*service.GetMovieRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(http.StatusOK, out)
	}
}

func addMovieHandler(svc *service.MovieService) khttp.HandlerFunc {
	return func(ctx khttp.Context) error {
		body, err := decodeBody(ctx.Response(), ctx.Request())
		if err != nil {
			return err
		}
		in := service.MoviePayload{Body: body}
		khttp.SetOperation(ctx, OperationAddMovie)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return svc.AddMovie(ctx, req.(*service.MoviePayload))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(http.StatusOK, out)
	}
}

func updateMovieHandler(svc *service.MovieService) khttp.HandlerFunc {
	return func(ctx khttp.Context) error {
		body, err := decodeBody(ctx.Response(), ctx.Request())
		if err != nil {
			return err
		}
		in := service.MoviePayload{Body: body}
		khttp.SetOperation(ctx, OperationUpdateMovie)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return svc.UpdateMovie(ctx, req.(*service.MoviePayload))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(http.StatusOK, out)
	}
}

func healthCheckHandler(svc *service.MovieService) khttp.HandlerFunc {
	return func(ctx khttp.Context) error {
		var in service.HealthCheckRequest
		khttp.SetOperation(ctx, OperationHealthCheck)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return svc.HealthCheck(ctx, req.(*service.HealthCheckRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(http.StatusOK, out)
	}
}

// maxBodyBytes caps add/update request bodies.
const maxBodyBytes = 1 << 20

// decodeBody reads the request body as a single untyped JSON value so the
// schema check can see unknown keys and wrong types.
func decodeBody(w http.ResponseWriter, r *http.Request) (any, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errors.New(http.StatusRequestEntityTooLarge, ReasonBodyTooLarge,
				fmt.Sprintf("Request body must not exceed %d bytes!", tooLarge.Limit))
		}
		return nil, biz.SchemaError("request body could not be read")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	var body any
	if err := dec.Decode(&body); err != nil {
		return nil, biz.SchemaError("request body must hold a single JSON value")
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		return nil, biz.SchemaError("request body must hold a single JSON value")
	}
	return body, nil
}
