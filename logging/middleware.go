package logging

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

type ctxKey struct{}

// FromContext returns the request's LogData, or a detached one when the
// request did not pass through RequestLogger.
func FromContext(ctx context.Context) *LogData {
	if ld, ok := ctx.Value(ctxKey{}).(*LogData); ok {
		return ld
	}
	return NewLogData(logrus.New())
}

// RequestLogger logs every request as Handler.<route>.Start and then
// Handler.<route>.Complete, or Handler.<route>.Error for 5xx responses.
// Handlers add fields through FromContext(r.Context()).AddData.
func RequestLogger(logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logData := NewLogData(logger)
			logData.AddData("method", r.Method)
			logData.AddData("path", r.URL.Path)
			if id := middleware.GetReqID(r.Context()); id != "" {
				logData.AddData("request_id", id)
			}
			logger.WithField("path", r.URL.Path).Debugf("Handler.%s %s.Start", r.Method, r.URL.Path)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			endTimer := logData.AddTiming("duration")
			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), ctxKey{}, logData)))
			endTimer()

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logData.AddData("status", status)

			name := routeName(r)
			switch {
			case status >= 500:
				logData.Log().Errorf("Handler.%s.Error", name)
			case status >= 400:
				logData.Log().Warnf("Handler.%s.Complete", name)
			default:
				logData.Log().Infof("Handler.%s.Complete", name)
			}
		})
	}
}

// routeName is "<METHOD> <pattern>", e.g. "POST /api/recurring-transactions/{id}/process".
func routeName(r *http.Request) string {
	pattern := r.URL.Path
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			pattern = strings.TrimSuffix(p, "/*")
		}
	}
	return r.Method + " " + pattern
}
