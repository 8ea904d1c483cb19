package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"stream-anomaly-detector/models"
	"stream-anomaly-detector/sink"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	requestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

type StatsSource interface {
	Snapshot(stream string) (models.Snapshot, bool)
	Streams() []string
}

type LatestStore interface {
	GetRecord(ctx context.Context, stream string) (*models.ClassificationRecord, error)
}

// RecordHandler serves read-only views of classified samples.
type RecordHandler struct {
	table  *sink.RecordTable
	stats  StatsSource
	latest LatestStore
	logger logrus.FieldLogger
}

// NewRecordHandler wires the views. latest may be nil, in which case /latest
// answers from the in-memory table.
func NewRecordHandler(table *sink.RecordTable, stats StatsSource, latest LatestStore, logger logrus.FieldLogger) *RecordHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RecordHandler{table: table, stats: stats, latest: latest, logger: logger}
}

func NewRouter(h *RecordHandler) *mux.Router {
	r := mux.NewRouter()
	r.Use(instrument)

	r.HandleFunc("/health", HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/streams", h.HandleStreams).Methods(http.MethodGet)
	r.HandleFunc("/records", h.HandleRecords).Methods(http.MethodGet)
	r.HandleFunc("/anomalies", h.HandleAnomalies).Methods(http.MethodGet)
	r.HandleFunc("/stats", h.HandleStats).Methods(http.MethodGet)
	r.HandleFunc("/latest", h.HandleLatest).Methods(http.MethodGet)
	r.Path("/metrics").Handler(promhttp.Handler())
	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		requestDurationSeconds.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	})
}

func streamParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	stream := r.URL.Query().Get("stream")
	if stream == "" {
		http.Error(w, "stream parameter is required", http.StatusBadRequest)
		return "", false
	}
	return stream, true
}

func limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
		return 0, false
	}
	return limit, true
}

func (h *RecordHandler) HandleStreams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, h.stats.Streams())
}

func (h *RecordHandler) HandleRecords(w http.ResponseWriter, r *http.Request) {
	stream, ok := streamParam(w, r)
	if !ok {
		return
	}
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, h.logger, h.table.All(stream, limit))
}

func (h *RecordHandler) HandleAnomalies(w http.ResponseWriter, r *http.Request) {
	stream, ok := streamParam(w, r)
	if !ok {
		return
	}
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, h.logger, h.table.Anomalies(stream, limit))
}

func (h *RecordHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stream, ok := streamParam(w, r)
	if !ok {
		return
	}
	snap, found := h.stats.Snapshot(stream)
	if !found {
		http.Error(w, "unknown stream", http.StatusNotFound)
		return
	}
	writeJSON(w, h.logger, snap)
}

func (h *RecordHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	stream, ok := streamParam(w, r)
	if !ok {
		return
	}

	var record *models.ClassificationRecord
	if h.latest != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		var err error
		record, err = h.latest.GetRecord(ctx, stream)
		if err != nil {
			h.logger.WithError(err).WithField("stream", stream).Error("failed to read latest record")
			http.Error(w, "failed to get latest record", http.StatusInternalServerError)
			return
		}
	} else if rows := h.table.All(stream, 1); len(rows) == 1 {
		record = &rows[0]
	}

	if record == nil {
		http.Error(w, "no data", http.StatusNotFound)
		return
	}
	writeJSON(w, h.logger, record)
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, logrus.StandardLogger(), map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, logger logrus.FieldLogger, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Debug("failed to write response")
	}
}
