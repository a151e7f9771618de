package server

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"movieratings/internal/service"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const requestIDHeader = "X-Request-Id"

type requestIDKey struct{}

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "movieratings",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Handled operations by status code and error reason.",
	}, []string{"operation", "code", "reason"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "movieratings",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Operation latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)

// RequestIDMiddleware propagates X-Request-Id, generating one when absent
func RequestIDMiddleware() middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			tr, ok := transport.FromServerContext(ctx)
			if !ok {
				return handler(ctx, req)
			}
			id := tr.RequestHeader().Get(requestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			tr.ReplyHeader().Set(requestIDHeader, id)
			return handler(context.WithValue(ctx, requestIDKey{}, id), req)
		}
	}
}

// RequestID returns a log.Valuer resolving the current request id.
func RequestID() log.Valuer {
	return func(ctx context.Context) interface{} {
		if ctx == nil {
			return ""
		}
		id, _ := ctx.Value(requestIDKey{}).(string)
		return id
	}
}

// ClientAddrMiddleware records the requester's address for user resolution
func ClientAddrMiddleware(trustForwarded bool) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			if r, ok := khttp.RequestFromServerContext(ctx); ok {
				ctx = service.NewClientAddrContext(ctx, clientAddr(r, trustForwarded))
			}
			return handler(ctx, req)
		}
	}
}

func clientAddr(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// MetricsMiddleware counts operations and observes their latency
func MetricsMiddleware() middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			operation := "unknown"
			if tr, ok := transport.FromServerContext(ctx); ok {
				operation = tr.Operation()
			}
			start := time.Now()

			reply, err := handler(ctx, req)

			code, reason := http.StatusOK, ""
			if se := errors.FromError(err); se != nil {
				code, reason = int(se.Code), se.Reason
			}
			requestsTotal.WithLabelValues(operation, strconv.Itoa(code), reason).Inc()
			requestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
			return reply, err
		}
	}
}
