// Package httpapi exposes the platform's JSON surface: adapter triggers,
// correlation runs, the entity graph, chat and the live event tail.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/venwatch/venwatch/internal/adapter"
	"github.com/venwatch/venwatch/internal/bus"
	"github.com/venwatch/venwatch/internal/correlation"
	"github.com/venwatch/venwatch/internal/event"
	"github.com/venwatch/venwatch/internal/forecast"
	"github.com/venwatch/venwatch/internal/graph"
	"github.com/venwatch/venwatch/internal/llm"
	"github.com/venwatch/venwatch/internal/persistence"
	"github.com/venwatch/venwatch/internal/score/daily"
)

// Deps wires the server. Forecasts and Chat may be nil; their endpoints
// then answer 503.
type Deps struct {
	Registry  *adapter.Registry
	Bus       bus.EventBus
	Graphs    *graph.Builder
	Loader    *correlation.Loader
	Events    persistence.EventStore
	Daily     *daily.Composer
	Chat      llm.Client
	Trending  TrendingSource
	Forecasts *forecast.Client
}

// Server is the HTTP API.
type Server struct {
	deps Deps
	tail *tail
}

func NewServer(deps Deps) *Server {
	return &Server{deps: deps, tail: newTail()}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestLog)

	r.HandleFunc("/trigger/{source}", s.handleTrigger).Methods(http.MethodPost)
	r.HandleFunc("/push/{topic}", s.handlePush).Methods(http.MethodPost)
	r.HandleFunc("/correlation/compute", s.handleCorrelation).Methods(http.MethodPost)
	r.HandleFunc("/graph/entities", s.handleGraphEntities).Methods(http.MethodGet)
	r.HandleFunc("/graph/narrative/{a}/{b}", s.handleNarrative).Methods(http.MethodGet)
	r.HandleFunc("/forecast/{entity}", s.handleForecast).Methods(http.MethodGet)
	r.HandleFunc("/scores/daily", s.handleDailyScores).Methods(http.MethodGet)
	r.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ws/events", s.handleWS).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

// Start serves until the listener fails. The event tail subscription must
// be attached first via AttachTail.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE and websocket streams
	}
	log.Info().Str("addr", addr).Msg("http api listening")
	return srv.ListenAndServe()
}

func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().Str("method", r.Method).Str("path", r.URL.Path).
			Dur("took", time.Since(start)).Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("response encode failed")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type triggerRequest struct {
	LookbackHours int `json:"lookback_hours"`
}

type triggerResponse struct {
	Status   string `json:"status"`
	TaskID   string `json:"task_id"`
	TaskName string `json:"task_name"`
	Message  string `json:"message"`
}

// handleTrigger starts one adapter run asynchronously.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	source := mux.Vars(r)["source"]
	if _, ok := s.deps.Registry.Get(source); !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown source %q", source))
		return
	}

	var req triggerRequest
	if r.Body != nil {
		// An empty body means the adapter's default lookback.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	taskID := uuid.NewString()
	taskName := "ingest-" + source
	end := time.Now().UTC()
	var start time.Time
	if req.LookbackHours > 0 {
		start = end.Add(-time.Duration(req.LookbackHours) * time.Hour)
	}

	// The run outlives the request, so it gets its own context.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		res, err := s.deps.Registry.Run(ctx, source, start, end)
		if err != nil {
			log.Warn().Err(err).Str("task_id", taskID).Str("source", source).Msg("triggered run failed")
			return
		}
		log.Info().Str("task_id", taskID).Str("source", source).
			Int("events", res.Events).Msg("triggered run completed")
	}()

	writeJSON(w, http.StatusAccepted, triggerResponse{
		Status:   "queued",
		TaskID:   taskID,
		TaskName: taskName,
		Message:  fmt.Sprintf("run for %s queued", source),
	})
}

// pushTopics maps the externally visible push-subscription names onto bus
// topics. The legacy analyze name stays routable.
var pushTopics = map[string]string{
	bus.TopicIngestEvent:     bus.TopicIngestEvent,
	bus.TopicAnalyzeEvent:    bus.TopicAnalyzeEvent,
	bus.TopicAnalyzeCompat:   bus.TopicAnalyzeEvent,
	bus.TopicExtractEntities: bus.TopicExtractEntities,
}

// maxPushBody bounds a pushed envelope.
const maxPushBody = 1 << 20

// handlePush accepts broker push deliveries: a base64 envelope whose payload
// is re-published on the named internal topic. Any 2xx acks the delivery.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	topic, ok := pushTopics[mux.Vars(r)["topic"]]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown topic %q", mux.Vars(r)["topic"]))
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPushBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read push body: %w", err))
		return
	}
	msg, err := bus.DecodePush(body, topic)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.deps.Bus.Publish(r.Context(), topic, msg.Key, msg.Payload); err != nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("republish push message: %w", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type correlationRequest struct {
	Variables     []string `json:"variables"`
	StartDate     string   `json:"start_date"`
	EndDate       string   `json:"end_date"`
	Method        string   `json:"method"`
	MinEffectSize float64  `json:"min_effect_size"`
	Alpha         float64  `json:"alpha"`
}

func (s *Server) handleCorrelation(w http.ResponseWriter, r *http.Request) {
	var req correlationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if len(req.Variables) < 2 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("need at least two variables"))
		return
	}
	from, err := time.ParseInLocation("2006-01-02", req.StartDate, time.UTC)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("start_date: %w", err))
		return
	}
	to, err := time.ParseInLocation("2006-01-02", req.EndDate, time.UTC)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("end_date: %w", err))
		return
	}

	series, err := s.deps.Loader.LoadSeries(r.Context(), req.Variables, from, to)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := correlation.Compute(series, correlation.Params{
		Method:        req.Method,
		Alpha:         req.Alpha,
		MinEffectSize: req.MinEffectSize,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGraphEntities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := graph.Options{}

	if v := q.Get("time_range"); v != "" {
		d, err := parseTimeRange(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		opts.Since = time.Now().UTC().Add(-d)
	}
	if v := q.Get("min_cooccurrence"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("min_cooccurrence: %w", err))
			return
		}
		opts.MinCooccurrence = n
	}
	if v := q.Get("theme_categories"); v != "" {
		for _, c := range strings.Split(v, ",") {
			opts.Categories = append(opts.Categories, event.Category(strings.ToUpper(strings.TrimSpace(c))))
		}
	}

	g, err := s.deps.Graphs.Build(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// parseTimeRange accepts "7d", "24h" or "30" (days).
func parseTimeRange(v string) (time.Duration, error) {
	if strings.HasSuffix(v, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(v, "d"))
		if err != nil {
			return 0, fmt.Errorf("time_range: %w", err)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	days, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("time_range %q not understood", v)
	}
	return time.Duration(days) * 24 * time.Hour, nil
}

func (s *Server) handleNarrative(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	n, err := s.deps.Graphs.Narrative(r.Context(), vars["a"], vars["b"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	if s.deps.Forecasts == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("forecasting not configured"))
		return
	}
	horizon := 0
	if v := r.URL.Query().Get("horizon"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("horizon: %w", err))
			return
		}
		horizon = n
	}
	f, err := s.deps.Forecasts.Get(r.Context(), mux.Vars(r)["entity"], horizon)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

type dailyScoresResponse struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
	daily.Result
}

// handleDailyScores reports category sub-scores and the composite over the
// requested window (default 24h). Events still awaiting analysis carry no
// risk score and are excluded.
func (s *Server) handleDailyScores(w http.ResponseWriter, r *http.Request) {
	window := 24 * time.Hour
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := parseTimeRange(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		window = d
	}
	to := time.Now().UTC()
	from := to.Add(-window)

	events, err := s.deps.Events.ListWindow(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	scores := make([]daily.EventScore, 0, len(events))
	for _, ev := range events {
		if ev.RiskScore == nil {
			continue
		}
		scores = append(scores, daily.EventScore{
			Category:  ev.Category,
			Severity:  ev.Severity,
			RiskScore: *ev.RiskScore,
		})
	}
	writeJSON(w, http.StatusOK, dailyScoresResponse{
		From:   from,
		To:     to,
		Result: s.deps.Daily.Compose(scores),
	})
}

type healthResponse struct {
	Status   string           `json:"status"`
	Bus      bus.HealthStatus `json:"bus"`
	Adapters []adapter.Health `json:"adapters"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   "ok",
		Bus:      s.deps.Bus.Health(),
		Adapters: s.deps.Registry.HealthSnapshot(),
	}
	status := http.StatusOK
	if !resp.Bus.Healthy {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
