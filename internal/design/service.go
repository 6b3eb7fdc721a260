// Package design composes the transcoder, response cache, retry executor and
// generation client into the four operations callers use.
package design

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"dreamspace-gateway/internal/cache"
	"dreamspace-gateway/internal/imaging"
	"dreamspace-gateway/internal/llm"
	"dreamspace-gateway/internal/metrics"
	"dreamspace-gateway/internal/styles"
)

const (
	// RedesignMaxDimension bounds uploads sent for image generation.
	RedesignMaxDimension = 640
	// AnalysisMaxDimension bounds uploads sent for advice and product detection.
	AnalysisMaxDimension = 480
)

// FallbackProductImages stand in for product crops that could not be made.
var FallbackProductImages = []string{
	"https://images.unsplash.com/photo-1555041469-a586c61ea9bc?auto=format&fit=crop&w=300&q=80",
	"https://images.unsplash.com/photo-1598300042247-d088f8ab3a91?auto=format&fit=crop&w=300&q=80",
	"https://images.unsplash.com/photo-1532372320572-cda25653a26d?auto=format&fit=crop&w=300&q=80",
}

// Options wires a Service. Client and Cache are required.
type Options struct {
	Client     llm.Client
	Cache      *cache.Cache
	Executor   *llm.Executor
	Transcoder *imaging.Transcoder
	Pool       *Pool
	// Notices are emitted during long redesigns; nil means DefaultNotices.
	Notices []Notice
	NewID   func() string
	Logger  *zap.Logger
}

// Service implements GenerateRedesign, GetAdvice, ShopTheLook and
// DescribeStyle. It is safe for concurrent use; identical concurrent calls
// share one upstream request.
type Service struct {
	client     llm.Client
	cache      *cache.Cache
	executor   *llm.Executor
	transcoder *imaging.Transcoder
	pool       *Pool
	notices    []Notice
	newID      func() string
	logger     *zap.Logger

	flights singleflight.Group
	hubsMu  sync.Mutex
	hubs    map[string]*statusHub
}

// NewService validates opts and fills defaults.
func NewService(opts Options) (*Service, error) {
	if opts.Client == nil {
		return nil, errors.New("design: client is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("design: cache is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Executor == nil {
		opts.Executor = llm.NewExecutor(llm.DefaultPolicy(), opts.Logger)
	}
	if opts.Transcoder == nil {
		opts.Transcoder = imaging.NewTranscoder(opts.Logger)
	}
	if opts.Notices == nil {
		opts.Notices = DefaultNotices
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	return &Service{
		client:     opts.Client,
		cache:      opts.Cache,
		executor:   opts.Executor,
		transcoder: opts.Transcoder,
		pool:       opts.Pool,
		notices:    opts.Notices,
		newID:      opts.NewID,
		logger:     opts.Logger.Named("design"),
		hubs:       make(map[string]*statusHub),
	}, nil
}

// GenerateRedesign returns a data URI of the room restyled as style.
func (s *Service) GenerateRedesign(ctx context.Context, image, style string, onStatus llm.StatusFunc) (string, error) {
	if err := validate(image, style, true); err != nil {
		return "", err
	}
	status := newStatusSink(onStatus, s.logger)
	key := cache.BuildFingerprint(cache.KindRedesign, image, style).String()

	var out string
	if s.cache.GetJSON(ctx, key, &out) {
		status.send(StatusFromCache)
		return out, nil
	}

	return share(ctx, s, key, llm.OpRedesign, status, func(fctx context.Context, status *statusHub) (string, error) {
		var hit string
		if s.cache.GetJSON(fctx, key, &hit) {
			status.send(StatusFromCache)
			return hit, nil
		}

		status.send(StatusOptimizing)
		small := s.transcoder.Resize(image, RedesignMaxDimension)

		status.send(StatusSending)
		stop := status.startNotices(s.notices)
		defer stop()

		res, err := llm.Do(fctx, s.executor, llm.OpRedesign, status.send, func(actx context.Context) (string, error) {
			var img string
			err := s.pool.Run(actx, func() error {
				var err error
				img, err = s.client.Redesign(actx, small, styles.PromptName(style))
				return err
			})
			return img, err
		})
		if err != nil {
			return "", err
		}

		s.cache.SetJSON(fctx, key, res)
		return res, nil
	})
}

// GetAdvice returns a structured critique for turning the room into style.
func (s *Service) GetAdvice(ctx context.Context, image, style string, onStatus llm.StatusFunc) (*llm.DesignAdvice, error) {
	if err := validate(image, style, true); err != nil {
		return nil, err
	}
	status := newStatusSink(onStatus, s.logger)
	key := cache.BuildFingerprint(cache.KindAdvice, image, style).String()

	var cached llm.DesignAdvice
	if s.cache.GetJSON(ctx, key, &cached) {
		status.send(StatusFromCache)
		return &cached, nil
	}

	return share(ctx, s, key, llm.OpAdvice, status, func(fctx context.Context, status *statusHub) (*llm.DesignAdvice, error) {
		var hit llm.DesignAdvice
		if s.cache.GetJSON(fctx, key, &hit) {
			status.send(StatusFromCache)
			return &hit, nil
		}

		status.send(StatusOptimizing)
		small := s.transcoder.Resize(image, AnalysisMaxDimension)

		status.send(StatusSending)
		res, err := llm.Do(fctx, s.executor, llm.OpAdvice, status.send, func(actx context.Context) (*llm.DesignAdvice, error) {
			var advice *llm.DesignAdvice
			err := s.pool.Run(actx, func() error {
				var err error
				advice, err = s.client.Advice(actx, small, styles.PromptName(style))
				return err
			})
			return advice, err
		})
		if err != nil {
			return nil, err
		}

		s.cache.SetJSON(fctx, key, res)
		return res, nil
	})
}

// ShopTheLook detects products in the room and crops an image for each.
func (s *Service) ShopTheLook(ctx context.Context, image string, onStatus llm.StatusFunc) (*llm.LookCollection, error) {
	if err := validate(image, "", false); err != nil {
		return nil, err
	}
	status := newStatusSink(onStatus, s.logger)
	key := cache.BuildFingerprint(cache.KindShop, image).String()

	var cached llm.LookCollection
	if s.cache.GetJSON(ctx, key, &cached) {
		status.send(StatusFromCache)
		return &cached, nil
	}

	return share(ctx, s, key, llm.OpShop, status, func(fctx context.Context, status *statusHub) (*llm.LookCollection, error) {
		var hit llm.LookCollection
		if s.cache.GetJSON(fctx, key, &hit) {
			status.send(StatusFromCache)
			return &hit, nil
		}

		status.send(StatusOptimizing)
		small := s.transcoder.Resize(image, AnalysisMaxDimension)

		status.send(StatusSending)
		draft, err := llm.Do(fctx, s.executor, llm.OpShop, status.send, func(actx context.Context) (*llm.LookDraft, error) {
			var look *llm.LookDraft
			err := s.pool.Run(actx, func() error {
				var err error
				look, err = s.client.ShopTheLook(actx, small)
				return err
			})
			return look, err
		})
		if err != nil {
			return nil, err
		}

		res := s.buildCollection(image, small, draft)
		s.cache.SetJSON(fctx, key, res)
		return res, nil
	})
}

// buildCollection crops every product out of the transcoded image. A
// product whose crop is empty gets a fallback picture chosen by its index.
func (s *Service) buildCollection(original, small string, draft *llm.LookDraft) *llm.LookCollection {
	products := make([]llm.Product, 0, len(draft.Products))
	for idx, p := range draft.Products {
		img := s.transcoder.Crop(small, p.Box)
		if img == "" {
			img = FallbackProductImages[idx%len(FallbackProductImages)]
		}
		query := strings.TrimSpace(p.Query)
		if query == "" {
			query = p.Name
		}
		products = append(products, llm.Product{
			ID:          fmt.Sprintf("gen-%d", idx),
			Name:        p.Name,
			Price:       p.Price,
			Category:    p.Category,
			Query:       query,
			Image:       img,
			BoundingBox: p.Box,
		})
	}

	return &llm.LookCollection{
		ID:          s.newID(),
		Title:       draft.Title,
		Style:       draft.Style,
		Description: draft.Description,
		Image:       original,
		Products:    products,
	}
}

// DescribeStyle returns a short description of style. It never fails.
func (s *Service) DescribeStyle(ctx context.Context, style string) string {
	return s.tryDescribeStyle(ctx, style)
}

// FallbackDescription is what DescribeStyle returns when generation fails.
func FallbackDescription(style string) string {
	return fmt.Sprintf("A unique fusion style tailored just for you: %s.", style)
}

func (s *Service) tryDescribeStyle(ctx context.Context, style string) string {
	style = strings.TrimSpace(style)
	if style == "" {
		return FallbackDescription(style)
	}
	key := cache.BuildTextFingerprint(cache.KindQuizDesc, style).String()

	var cached string
	if s.cache.GetJSON(ctx, key, &cached) {
		return cached
	}

	text, err := share(ctx, s, key, llm.OpDescribe, nil, func(fctx context.Context, _ *statusHub) (string, error) {
		var hit string
		if s.cache.GetJSON(fctx, key, &hit) {
			return hit, nil
		}

		res, err := llm.Do(fctx, s.executor, llm.OpDescribe, nil, func(actx context.Context) (string, error) {
			var text string
			err := s.pool.Run(actx, func() error {
				var err error
				text, err = s.client.DescribeStyle(actx, style)
				return err
			})
			return text, err
		})
		if err != nil {
			return "", err
		}
		s.cache.SetJSON(fctx, key, res)
		return res, nil
	})
	if err != nil {
		s.logger.Warn("style description unavailable, using fallback",
			zap.String("style", style),
			zap.Error(err),
		)
		return FallbackDescription(style)
	}
	return text
}

// share runs fn once per key across concurrent callers. The flight is
// detached from the caller's cancellation so an abandoned call still
// completes and fills the cache; each caller waits on its own ctx. Progress
// sent through the flight's hub reaches every caller subscribed to it.
func share[T any](ctx context.Context, s *Service, key, operation string, sink *statusSink, fn func(ctx context.Context, status *statusHub) (T, error)) (T, error) {
	var zero T

	hub := s.subscribe(key, sink)
	defer s.unsubscribe(key, hub, sink)

	ch := s.flights.DoChan(key, func() (any, error) {
		defer s.releaseHub(key, hub)
		return fn(context.WithoutCancel(ctx), hub)
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.DedupSharedTotal.WithLabelValues(operation).Inc()
		}
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (s *Service) subscribe(key string, sink *statusSink) *statusHub {
	s.hubsMu.Lock()
	defer s.hubsMu.Unlock()
	hub, ok := s.hubs[key]
	if !ok {
		hub = newStatusHub()
		s.hubs[key] = hub
	}
	if sink != nil {
		hub.add(sink)
	}
	return hub
}

func (s *Service) unsubscribe(key string, hub *statusHub, sink *statusSink) {
	if sink != nil {
		hub.remove(sink)
	}
	s.hubsMu.Lock()
	defer s.hubsMu.Unlock()
	if s.hubs[key] == hub && hub.empty() {
		delete(s.hubs, key)
	}
}

func (s *Service) releaseHub(key string, hub *statusHub) {
	s.hubsMu.Lock()
	defer s.hubsMu.Unlock()
	if s.hubs[key] == hub {
		delete(s.hubs, key)
	}
}

func validate(image, style string, needStyle bool) error {
	if strings.TrimSpace(image) == "" {
		return &llm.Error{Kind: llm.KindInvalidRequest, Message: "An image is required."}
	}
	// undecodable payloads pass through untouched; only a readable header
	// that declares too many pixels is refused
	if err := imaging.CheckSize(image); errors.Is(err, imaging.ErrTooLarge) {
		return &llm.Error{Kind: llm.KindInvalidRequest, Message: "The photo is too large. Use an image under 40 megapixels.", Err: err}
	}
	if needStyle && strings.TrimSpace(style) == "" {
		return &llm.Error{Kind: llm.KindInvalidRequest, Message: "A style is required."}
	}
	return nil
}
