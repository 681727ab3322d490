// Package iconserver is a stand-in for the icon service under test. It
// answers GET /{host}/icon.png with a small PNG whose colors are derived from
// the host, so load runs can be tried end to end without the real backend.
//
// Rendered icons are kept in an LRU cache keyed by host. The cache=false
// query parameter skips the cache in both directions, which is what the load
// generator sends by default. Every response carries X-Icon-Cache with HIT,
// MISS or BYPASS.
package iconserver

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"strconv"
	"strings"
	"time"

	"iconload/pkg/controller"
	"iconload/pkg/logger"
	"iconload/pkg/serrors"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const (
	// CacheHeader reports how the icon was produced.
	CacheHeader = "X-Icon-Cache"

	CacheHit    = "HIT"
	CacheMiss   = "MISS"
	CacheBypass = "BYPASS"

	// IconSize is the width and height of every icon in pixels.
	IconSize = 16

	defaultCacheSize = 1000
	cells            = 4
)

// Options configure a Server.
type Options struct {
	// CacheSize is the number of icons kept in memory. Defaults to 1000.
	CacheSize int
	// Delay is added to every render that does not come from the cache.
	Delay time.Duration
	// MeterProvider receives the render counter; the global provider when nil.
	MeterProvider metric.MeterProvider
}

type icon struct {
	png  []byte
	etag string
}

// Server renders and caches icons. It is safe for concurrent use.
type Server struct {
	cache    *lru.Cache
	delay    time.Duration
	requests metric.Int64Counter
}

// New validates opts and returns a Server.
func New(opts Options) (*Server, error) {
	if opts.CacheSize < 0 || opts.Delay < 0 {
		return nil, serrors.With(serrors.ErrInvalidConfig, "cache size and delay must not be negative")
	}
	if opts.CacheSize == 0 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = otel.GetMeterProvider()
	}

	cache, err := lru.New(opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("could not create icon cache: %w", err)
	}

	requests, err := opts.MeterProvider.Meter("iconload/iconserver").Int64Counter("iconserver.requests",
		metric.WithDescription("Icon requests served, by cache outcome."))
	if err != nil {
		return nil, fmt.Errorf("could not create request counter: %w", err)
	}

	return &Server{cache: cache, delay: opts.Delay, requests: requests}, nil
}

// Handler returns the routes of the server wrapped in the CORS and logging
// middlewares. GET covers HEAD; other methods get 405.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{host}/icon.png", s.serveIcon)

	return controller.WithLogger(controller.WithCORS(mux))
}

// Len returns the number of cached icons.
func (s *Server) Len() int { return s.cache.Len() }

func (s *Server) serveIcon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	host := strings.ToLower(r.PathValue("host"))
	if !validHost(host) {
		http.NotFound(w, r)

		return
	}

	outcome := CacheMiss
	bypass := r.URL.Query().Get("cache") == "false"
	if bypass {
		outcome = CacheBypass
	}

	var ic icon
	if cached, ok := s.cache.Get(host); ok && !bypass {
		outcome = CacheHit
		ic, _ = cached.(icon)
	} else {
		var err error
		if ic, err = s.render(ctx, host); err != nil {
			logger.Warn(ctx, "could not render icon", zap.String("host", host), zap.Error(err))
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)

			return
		}
		if !bypass {
			s.cache.Add(host, ic)
		}
	}
	s.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("cache", outcome)))

	h := w.Header()
	h.Set(CacheHeader, outcome)
	h.Set("ETag", ic.etag)
	if bypass {
		h.Set("Cache-Control", "no-store")
	} else {
		h.Set("Cache-Control", "public, max-age=86400")
	}

	if match := r.Header.Get("If-None-Match"); match != "" && match == ic.etag {
		w.WriteHeader(http.StatusNotModified)

		return
	}

	h.Set("Content-Type", "image/png")
	h.Set("Content-Length", strconv.Itoa(len(ic.png)))
	_, _ = w.Write(ic.png)
}

// render waits for the configured delay, then encodes the icon of host.
func (s *Server) render(ctx context.Context, host string) (icon, error) {
	if s.delay > 0 {
		t := time.NewTimer(s.delay)
		defer t.Stop()

		select {
		case <-ctx.Done():
			return icon{}, serrors.Wrap(serrors.ErrTimeout, ctx.Err(), "render cancelled")
		case <-t.C:
		}
	}

	b, err := Render(host)
	if err != nil {
		return icon{}, err
	}

	return icon{png: b, etag: fmt.Sprintf(`"%016x"`, xxhash.Sum64(b))}, nil
}

// Render draws the icon of host: a mirrored 4x4 pattern in a host-specific
// color on a light background. The same host always yields the same bytes.
func Render(host string) ([]byte, error) {
	sum := xxhash.Sum64String(host)

	fg := color.NRGBA{R: uint8(sum), G: uint8(sum >> 8), B: uint8(sum >> 16), A: 0xff}
	bg := color.NRGBA{R: 0xf0, G: 0xf0, B: 0xf0, A: 0xff}

	img := image.NewNRGBA(image.Rect(0, 0, IconSize, IconSize))
	cell := IconSize / cells
	bits := sum >> 24
	for y := range IconSize {
		for x := range IconSize {
			cx, cy := x/cell, y/cell
			// mirror the left half onto the right half
			if cx >= cells/2 {
				cx = cells - 1 - cx
			}
			c := bg
			if bits&(1<<(cy*cells/2+cx)) != 0 {
				c = fg
			}
			img.SetNRGBA(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("could not encode icon: %w", err)
	}

	return buf.Bytes(), nil
}

// validHost accepts dotted hostnames made of letters, digits, dashes and dots.
func validHost(host string) bool {
	if len(host) > 253 || !strings.Contains(host, ".") || strings.HasPrefix(host, ".") || strings.HasSuffix(host, ".") {
		return false
	}

	for _, c := range host {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '.':
		default:
			return false
		}
	}

	return true
}
