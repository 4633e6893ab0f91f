package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const ReservationPath = "/api/OrderItemReservation"

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(handler.log))
	r.Use(middleware.Recoverer)

	r.Get(ReservationPath, handler.OrderItemReservation)
	r.Post(ReservationPath, handler.OrderItemReservation)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusOK, "ok")
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// requestLogger logs one line per request through logrus.
func requestLogger(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				logger.WithFields(log.Fields{
					"request_id":  middleware.GetReqID(r.Context()),
					"method":      r.Method,
					"path":        r.URL.Path,
					"remote_addr": r.RemoteAddr,
					"status":      ww.Status(),
					"bytes":       ww.BytesWritten(),
					"duration":    time.Since(start),
				}).Info("Handled HTTP request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
