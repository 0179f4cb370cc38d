package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/logging"
	"quiz-attempt-service/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Handler exposes the attempt use cases over HTTP/JSON.
type Handler struct {
	service  *app.AttemptService
	hub      *app.Hub
	auth     *Authenticator
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	now      func() time.Time
	validate *validator.Validate
	upgrader websocket.Upgrader
}

type HandlerOption func(*Handler)

func WithLogger(l logrus.FieldLogger) HandlerOption { return func(h *Handler) { h.log = l } }

// WithMetrics records request metrics and serves g at /metrics.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) HandlerOption {
	return func(h *Handler) {
		h.metrics = m
		h.gatherer = g
	}
}

// WithClock overrides the time source handed to the service.
func WithClock(now func() time.Time) HandlerOption { return func(h *Handler) { h.now = now } }

func NewHandler(service *app.AttemptService, hub *app.Hub, auth *Authenticator, opts ...HandlerOption) *Handler {
	h := &Handler{
		service:  service,
		hub:      hub,
		auth:     auth,
		log:      logging.Discard(),
		now:      time.Now,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, h.instrument)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(h.auth.Middleware)

		r.Post("/quizzes/{quizID}/start", h.startAttempt)
		r.Get("/quizzes/{quizID}/leaderboard", h.leaderboard)
		r.Get("/quizzes/{quizID}/leaderboard/ws", h.leaderboardStream)

		r.Route("/attempts/{attemptID}", func(r chi.Router) {
			r.Get("/", h.getAttempt)
			r.Post("/answers", h.submitAnswer)
			r.Post("/finish", h.closeAttempt)
			r.Post("/regrade", h.regradeAttempt)
			r.Post("/certificate", h.issueCertificate)
		})

		r.Get("/certificates/verify/{code}", h.verifyCertificate)
	})
	return r
}

type startRequest struct {
	AccessCode string `json:"access_code" validate:"max=255"`
}

type answerRequest struct {
	QuestionID    string  `json:"question_id" validate:"required"`
	OptionID      *string `json:"option_id" validate:"omitempty,min=1"`
	AnswerContent *string `json:"answer_content" validate:"omitempty,max=10000"`
}

func (h *Handler) startAttempt(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := h.decode(r, &req, true); err != nil {
		h.respondError(w, r, err)
		return
	}
	attempt, err := h.service.StartAttempt(r.Context(), ActorFromContext(r.Context()), chi.URLParam(r, "quizID"), req.AccessCode, h.now())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, attempt)
}

func (h *Handler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := h.decode(r, &req, false); err != nil {
		h.respondError(w, r, err)
		return
	}
	answer, err := h.service.SubmitAnswer(r.Context(), ActorFromContext(r.Context()), chi.URLParam(r, "attemptID"),
		req.QuestionID, req.OptionID, req.AnswerContent, h.now())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, answer)
}

func (h *Handler) closeAttempt(w http.ResponseWriter, r *http.Request) {
	attempt, err := h.service.CloseAttempt(r.Context(), ActorFromContext(r.Context()), chi.URLParam(r, "attemptID"), h.now())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, attempt)
}

func (h *Handler) regradeAttempt(w http.ResponseWriter, r *http.Request) {
	attempt, err := h.service.RegradeAttempt(r.Context(), ActorFromContext(r.Context()), chi.URLParam(r, "attemptID"), h.now())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, attempt)
}

func (h *Handler) getAttempt(w http.ResponseWriter, r *http.Request) {
	attempt, err := h.service.GetAttempt(r.Context(), ActorFromContext(r.Context()), chi.URLParam(r, "attemptID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, attempt)
}

func (h *Handler) issueCertificate(w http.ResponseWriter, r *http.Request) {
	cert, err := h.service.IssueCertificate(r.Context(), ActorFromContext(r.Context()), chi.URLParam(r, "attemptID"), h.now())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if cert == nil {
		respondJSON(w, http.StatusUnprocessableEntity, errorBody{
			Error:   domain.KindNotEligible.String(),
			Message: "score is below the passing score",
		})
		return
	}
	respondJSON(w, http.StatusOK, cert)
}

func (h *Handler) verifyCertificate(w http.ResponseWriter, r *http.Request) {
	cert, err := h.service.VerifyCertificate(r.Context(), ActorFromContext(r.Context()), chi.URLParam(r, "code"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cert)
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	lb, err := h.service.Leaderboard(r.Context(), ActorFromContext(r.Context()), chi.URLParam(r, "quizID"), h.now())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, lb)
}

// decode reads a JSON body into dst and validates it. An empty body is
// accepted when optional is set.
func (h *Handler) decode(r *http.Request, dst any, optional bool) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			return fmt.Errorf("%w: malformed json body", domain.ErrValidation)
		}
	}
	if err := h.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrValidation, err.Error())
	}
	return nil
}

// instrument logs and counts each request under its route pattern.
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(start)

		if h.metrics != nil {
			h.metrics.RequestCounter.WithLabelValues(route, strconv.Itoa(status)).Inc()
			h.metrics.RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
		}
		h.log.WithFields(logrus.Fields{
			"method":      r.Method,
			"route":       route,
			"status":      status,
			"duration_ms": elapsed.Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Info("request")
	})
}
