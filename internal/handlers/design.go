package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"dreamspace-gateway/internal/llm"
	"dreamspace-gateway/internal/styles"
	"dreamspace-gateway/pkg/logging/logging"
)

// Designer is the operation surface the handlers expose over HTTP.
type Designer interface {
	GenerateRedesign(ctx context.Context, image, style string, onStatus llm.StatusFunc) (string, error)
	GetAdvice(ctx context.Context, image, style string, onStatus llm.StatusFunc) (*llm.DesignAdvice, error)
	ShopTheLook(ctx context.Context, image string, onStatus llm.StatusFunc) (*llm.LookCollection, error)
	DescribeStyle(ctx context.Context, style string) string
}

// DesignHandler holds dependencies for the /v1 design endpoints.
type DesignHandler struct {
	Designer Designer
}

func NewDesignHandler(d Designer) *DesignHandler {
	return &DesignHandler{Designer: d}
}

type imageRequest struct {
	Image string `json:"image"`
	Style string `json:"style,omitempty"`
}

type redesignResponse struct {
	Image  string   `json:"image"`
	Status []string `json:"status"`
}

type adviceResponse struct {
	Advice *llm.DesignAdvice `json:"advice"`
	Status []string          `json:"status"`
}

type shopResponse struct {
	Collection *llm.LookCollection `json:"collection"`
	Status     []string            `json:"status"`
}

type describeResponse struct {
	Style       string `json:"style"`
	Description string `json:"description"`
}

type errorResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

// statusCollector gathers progress messages for the response body.
type statusCollector struct {
	mu   sync.Mutex
	msgs []string
}

func (c *statusCollector) add(msg string) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
}

func (c *statusCollector) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.msgs))
	copy(out, c.msgs)
	return out
}

// Redesign handles POST /v1/redesign.
func (h *DesignHandler) Redesign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var req imageRequest
	if !h.decode(w, r, &req) {
		return
	}

	var status statusCollector
	img, err := h.Designer.GenerateRedesign(ctx, req.Image, req.Style, status.add)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	logging.L(ctx).Info("redesign_completed",
		zap.String("style", req.Style),
		zap.Int("input_bytes", len(req.Image)),
		zap.Int("output_bytes", len(img)),
		zap.Duration("total_latency_ms", time.Since(start)),
	)
	h.writeJSON(w, http.StatusOK, redesignResponse{Image: img, Status: status.list()})
}

// Advice handles POST /v1/advice.
func (h *DesignHandler) Advice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var req imageRequest
	if !h.decode(w, r, &req) {
		return
	}

	var status statusCollector
	advice, err := h.Designer.GetAdvice(ctx, req.Image, req.Style, status.add)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	logging.L(ctx).Info("advice_completed",
		zap.String("style", req.Style),
		zap.Int("palette_size", len(advice.ColorPalette)),
		zap.Duration("total_latency_ms", time.Since(start)),
	)
	h.writeJSON(w, http.StatusOK, adviceResponse{Advice: advice, Status: status.list()})
}

// Shop handles POST /v1/shop.
func (h *DesignHandler) Shop(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var req imageRequest
	if !h.decode(w, r, &req) {
		return
	}

	var status statusCollector
	look, err := h.Designer.ShopTheLook(ctx, req.Image, status.add)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	logging.L(ctx).Info("shop_completed",
		zap.String("collection_id", look.ID),
		zap.Int("products", len(look.Products)),
		zap.Duration("total_latency_ms", time.Since(start)),
	)
	h.writeJSON(w, http.StatusOK, shopResponse{Collection: look, Status: status.list()})
}

// Styles handles GET /v1/styles.
func (h *DesignHandler) Styles(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, styles.All())
}

// DescribeStyle handles GET /v1/styles/{style}/description. It always
// answers 200; generation failures produce the fallback text.
func (h *DesignHandler) DescribeStyle(w http.ResponseWriter, r *http.Request) {
	style := chi.URLParam(r, "style")
	if style == "" {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   string(llm.KindInvalidRequest),
			Message: "A style is required.",
		})
		return
	}

	desc := h.Designer.DescribeStyle(r.Context(), style)
	h.writeJSON(w, http.StatusOK, describeResponse{Style: style, Description: desc})
}

func (h *DesignHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		logging.L(r.Context()).Warn("invalid request", zap.Error(err))

		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
				Error:   string(llm.KindInvalidRequest),
				Message: "The uploaded image is too large.",
			})
			return false
		}
		h.writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   string(llm.KindInvalidRequest),
			Message: "invalid JSON",
		})
		return false
	}
	return true
}

// statusForKind maps error kinds onto HTTP statuses.
var statusForKind = map[llm.Kind]int{
	llm.KindConfig:           http.StatusInternalServerError,
	llm.KindAuthorization:    http.StatusUnauthorized,
	llm.KindEntityMismatch:   http.StatusConflict,
	llm.KindInvalidRequest:   http.StatusBadRequest,
	llm.KindQuotaExhausted:   http.StatusTooManyRequests,
	llm.KindCapacityExceeded: http.StatusServiceUnavailable,
	llm.KindTransient:        http.StatusServiceUnavailable,
	llm.KindMalformed:        http.StatusBadGateway,
	llm.KindUnknown:          http.StatusBadGateway,
}

func (h *DesignHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.L(r.Context())

	var classified *llm.Error
	switch {
	case errors.As(err, &classified):
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("request deadline exceeded", zap.Error(err))
		h.writeJSON(w, http.StatusGatewayTimeout, errorResponse{
			Error:   "gateway_timeout",
			Message: "The request took too long. Please try again.",
		})
		return
	case errors.Is(err, context.Canceled):
		// client went away, nobody reads the body
		logger.Info("request cancelled by client")
		return
	}

	lerr := llm.Classify(err)
	code, ok := statusForKind[lerr.Kind]
	if !ok {
		code = http.StatusBadGateway
	}

	resp := errorResponse{Error: string(lerr.Kind), Message: lerr.Message}
	if lerr.Cooldown > 0 {
		secs := int(math.Ceil(lerr.Cooldown.Seconds()))
		resp.RetryAfterSeconds = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	logger.Warn("design request failed",
		zap.String("kind", string(lerr.Kind)),
		zap.Int("status", code),
		zap.Error(err),
	)
	h.writeJSON(w, code, resp)
}

// writeJSON is a small helper to send JSON responses consistently.
func (h *DesignHandler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
