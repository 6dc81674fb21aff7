package tint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ironsheep/poster-tint/internal/imaging"
)

// DefaultConcurrency is the number of extractions a batch runs at once.
const DefaultConcurrency = 3

// Extractor produces an Extraction for an image URL. It must always return
// a usable color; *imaging.Analyzer is the production implementation.
type Extractor interface {
	Analyze(ctx context.Context, rawURL string) *imaging.Extraction
}

// Options configures a Service. Zero values select the defaults.
type Options struct {
	Concurrency int
	Logger      *zap.Logger
	Metrics     *Metrics
	OnError     ErrorHook
}

// Service resolves image URLs to tint colors.
//
// Every public operation is total: failures to load, analyze or persist
// resolve to the deterministic fallback color and are reported only through
// the logger, metrics and the OnError hook.
//
// Concurrent requests for the same normalized URL share one extraction.
type Service struct {
	cache       *Cache
	extractor   Extractor
	concurrency int
	logger      *zap.Logger
	metrics     *Metrics
	onError     ErrorHook

	flight singleflight.Group
}

// NewService creates a Service reading and writing through cache and
// extracting misses with extractor.
func NewService(cache *Cache, extractor Extractor, opts Options) *Service {
	s := &Service{
		cache:       cache,
		extractor:   extractor,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		onError:     opts.OnError,
	}
	if s.concurrency <= 0 {
		s.concurrency = DefaultConcurrency
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// GetColor returns the tint for rawURL, extracting it on a cache miss.
func (s *Service) GetColor(ctx context.Context, rawURL string) string {
	key := imaging.NormalizeURL(rawURL)
	if color, ok := s.cache.Get(ctx, key); ok {
		s.metrics.hit()
		return color
	}
	s.metrics.miss()
	return s.extract(ctx, rawURL, key)
}

// GetColors resolves a batch of URLs. The result is keyed by the URLs as
// given.
//
// Cache hits are answered first. Misses are handed to a pool of at most
// Concurrency workers, each pulling the next URL when it finishes the
// previous one. When ctx is cancelled no further URLs are dispatched;
// extractions already running complete, are cached and are included, while
// undispatched URLs are absent from the result.
func (s *Service) GetColors(ctx context.Context, urls []string) map[string]string {
	out := make(map[string]string, len(urls))

	var misses []string
	queued := make(map[string]bool)
	for _, u := range urls {
		if _, done := out[u]; done || queued[u] {
			continue
		}
		key := imaging.NormalizeURL(u)
		if color, ok := s.cache.Get(ctx, key); ok {
			s.metrics.hit()
			out[u] = color
			continue
		}
		s.metrics.miss()
		queued[u] = true
		misses = append(misses, u)
	}
	if len(misses) == 0 {
		return out
	}

	workers := s.concurrency
	if workers > len(misses) {
		workers = len(misses)
	}

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		queue = make(chan string)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range queue {
				color := s.extract(ctx, u, imaging.NormalizeURL(u))
				mu.Lock()
				out[u] = color
				mu.Unlock()
			}
		}()
	}

	dispatched := 0
dispatch:
	for _, u := range misses {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case queue <- u:
			dispatched++
		}
	}
	close(queue)
	wg.Wait()

	if dispatched < len(misses) {
		s.logger.Debug("batch cancelled",
			zap.Int("dispatched", dispatched),
			zap.Int("skipped", len(misses)-dispatched),
			zap.Error(ctx.Err()))
	}
	return out
}

// ClearCache drops every cached color.
func (s *Service) ClearCache(ctx context.Context) {
	s.cache.Clear(ctx)
	s.logger.Info("color cache cleared")
}

// Stats reports the cache state.
func (s *Service) Stats(ctx context.Context) CacheStats {
	return s.cache.Stats(ctx)
}

// Extract runs the extractor for rawURL without consulting or updating the
// cache, for diagnostics.
func (s *Service) Extract(ctx context.Context, rawURL string) *imaging.Extraction {
	return s.analyze(ctx, rawURL, imaging.NormalizeURL(rawURL))
}

// extract resolves a miss, sharing the work with any concurrent request for
// the same key. The extraction is detached from ctx cancellation so that an
// in-flight load is never aborted by the scheduler; the loader's own timeout
// still applies.
func (s *Service) extract(ctx context.Context, rawURL, key string) string {
	v, _, _ := s.flight.Do(key, func() (interface{}, error) {
		detached := context.WithoutCancel(ctx)

		// A flight for this key may have completed between our cache miss
		// and joining the group.
		if color, ok := s.cache.Get(detached, key); ok {
			return color, nil
		}

		ext := s.analyze(detached, rawURL, key)
		s.cache.Put(detached, key, ext.CSS)
		return ext.CSS, nil
	})
	return v.(string)
}

// analyze runs the extractor with accounting. Panics and invalid output are
// mapped to the fallback color.
func (s *Service) analyze(ctx context.Context, rawURL, key string) (ext *imaging.Extraction) {
	s.metrics.started()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			ext = fallbackFor(key, imaging.ReasonPanic, fmt.Errorf("extractor panicked: %v", r))
		}
		s.metrics.finished()
		s.record(ext, time.Since(start))
	}()

	ext = s.extractor.Analyze(ctx, rawURL)
	if ext == nil {
		return fallbackFor(key, reasonInvalidResult, errors.New("extractor returned no result"))
	}
	if _, err := imaging.ParseHSL(ext.CSS); err != nil {
		return fallbackFor(key, reasonInvalidResult, err)
	}
	return ext
}

// reasonInvalidResult marks extractor output that was not a renderable color.
const reasonInvalidResult imaging.FallbackReason = "invalid_result"

func fallbackFor(key string, reason imaging.FallbackReason, err error) *imaging.Extraction {
	tint := imaging.FallbackColor(key)
	return &imaging.Extraction{
		URL:      key,
		Color:    tint,
		CSS:      tint.String(),
		Fallback: true,
		Reason:   reason,
		Err:      err,
	}
}

func (s *Service) record(ext *imaging.Extraction, d time.Duration) {
	if !ext.Fallback {
		s.metrics.extracted("histogram", d)
		s.logger.Debug("extracted color",
			zap.String("url", ext.URL),
			zap.String("color", ext.CSS),
			zap.Duration("took", d))
		return
	}

	s.metrics.extracted(string(ext.Reason), d)
	s.logger.Warn("using fallback color",
		zap.String("url", ext.URL),
		zap.String("reason", string(ext.Reason)),
		zap.String("color", ext.CSS),
		zap.Error(ext.Err))
	if s.onError != nil && ext.Err != nil {
		s.onError(string(ext.Reason), ext.URL, ext.Err)
	}
}
