package server

import (
	"net/http"
	"strconv"

	"movieratings/internal/conf"
	"movieratings/internal/service"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/logging"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// applicationError replaces the detail of every 5xx response.
const applicationError = "Something went wrong!"

type errorEnvelope struct {
	Errors []errorItem `json:"errors"`
}

type errorItem struct {
	Status string `json:"status"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail"`
}

// errorEncoder renders every error as {"errors":[{"status","code","detail"}]}
func errorEncoder(w http.ResponseWriter, r *http.Request, err error) {
	se := errors.FromError(err)
	code := int(se.Code)
	if code < 400 || code > 599 {
		code = http.StatusInternalServerError
	}
	item := errorItem{
		Status: strconv.Itoa(code),
		Code:   se.Reason,
		Detail: se.Message,
	}
	if code >= http.StatusInternalServerError {
		item.Detail = applicationError
	}

	body, mErr := json.Marshal(errorEnvelope{Errors: []errorItem{item}})
	if mErr != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

// responseEncoder writes successful replies as JSON
func responseEncoder(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(data)
	return err
}

// NewHTTPServer new an HTTP server.
func NewHTTPServer(c *conf.Server, movieSvc *service.MovieService, logger log.Logger) *khttp.Server {
	var opts = []khttp.ServerOption{
		khttp.Middleware(
			recovery.Recovery(),
			RequestIDMiddleware(),
			logging.Server(logger),
			MetricsMiddleware(),
			ClientAddrMiddleware(c.HTTP.TrustForwarded),
		),
		khttp.ErrorEncoder(errorEncoder),
		khttp.ResponseEncoder(responseEncoder),
	}
	if c.HTTP.Network != "" {
		opts = append(opts, khttp.Network(c.HTTP.Network))
	}
	if c.HTTP.Addr != "" {
		opts = append(opts, khttp.Address(c.HTTP.Addr))
	}
	if c.HTTP.Timeout != 0 {
		opts = append(opts, khttp.Timeout(c.HTTP.Timeout.AsDuration()))
	}
	srv := khttp.NewServer(opts...)
	srv.Handle("/metrics", promhttp.Handler())
	RegisterMovieHTTPServer(srv, movieSvc)
	return srv
}
