// Package scanner finds the one element on a page that a search text and a
// locator hint describe, or explains why it could not.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/xkilldash9x/domscout/internal/config"
	"github.com/xkilldash9x/domscout/internal/descriptor"
	"github.com/xkilldash9x/domscout/internal/dom"
	"github.com/xkilldash9x/domscout/internal/fuzzy"
	"github.com/xkilldash9x/domscout/internal/observability"
)

const (
	interactiveSelector = "button, input, select, textarea, a"
	extendedSelector    = interactiveSelector + ", label, [role=button]"
)

// Document is the live page as the scanner sees it. Handles returned by one
// Find call stay valid until the next Find call of the same kind.
type Document interface {
	FindByText(ctx context.Context, text string, limit int) ([]dom.Handle, error)
	FindAll(ctx context.Context, selector string, limit int) ([]dom.Handle, error)
	Describe(ctx context.Context, h dom.Handle) (dom.Metadata, bool, error)
}

// Options tune a Scanner.
type Options struct {
	Strategy          string
	Threshold         float64
	MaxElements       int
	ExtendedSelectors bool
}

// OptionsFromConfig maps the scanner configuration section.
func OptionsFromConfig(cfg config.ScannerConfig) Options {
	return Options{
		Strategy:          cfg.Strategy,
		Threshold:         cfg.Threshold,
		MaxElements:       cfg.MaxElements,
		ExtendedSelectors: cfg.ExtendedSelectors,
	}
}

// Pass names which pass produced a result.
type Pass string

const (
	PassNarrow Pass = "narrow"
	PassBroad  Pass = "broad"
)

// Result is either a unique match or a list of candidates.
type Result struct {
	Match      *dom.Handle
	Matched    dom.Metadata
	Candidates []dom.Metadata
	// Ambiguous is set when several elements met the criteria equally.
	Ambiguous bool
	Pass      Pass
}

// Unique reports whether exactly one element was selected.
func (r Result) Unique() bool { return r.Match != nil }

// Scanner runs the narrow and broad passes.
type Scanner struct {
	opts   Options
	logger *zap.Logger
}

// New creates a Scanner. MaxElements is clamped to config.MaxScanElements.
func New(opts Options, logger *zap.Logger) *Scanner {
	if opts.MaxElements <= 0 || opts.MaxElements > config.MaxScanElements {
		opts.MaxElements = config.MaxScanElements
	}
	if opts.Strategy == "" {
		opts.Strategy = config.ScanStrategyNarrowThenBroad
	}
	return &Scanner{opts: opts, logger: logger.Named("scanner")}
}

type described struct {
	handle dom.Handle
	meta   dom.Metadata
}

// Scan resolves search and hint against doc. An empty search never matches,
// so the result lists every visible interactive element.
func (s *Scanner) Scan(ctx context.Context, doc Document, search string, hint descriptor.LocatorType) (res Result, err error) {
	ctx, span := observability.StartSpan(ctx, "scanner.Scan",
		attribute.String("search", search),
		attribute.String("hint", hint.String()),
	)
	defer func() {
		observability.EndSpan(span, err)
		if err == nil {
			observability.ObserveScanCandidates(len(res.Candidates))
		}
	}()

	search = strings.TrimSpace(search)
	if search != "" && s.opts.Strategy == config.ScanStrategyNarrowThenBroad {
		narrowed, done, nerr := s.narrow(ctx, doc, search, hint)
		if nerr != nil || done {
			return narrowed, nerr
		}
	}
	return s.broad(ctx, doc, search, hint)
}

func (s *Scanner) narrow(ctx context.Context, doc Document, search string, hint descriptor.LocatorType) (Result, bool, error) {
	handles, err := doc.FindByText(ctx, search, s.opts.MaxElements)
	if err != nil {
		return Result{}, false, fmt.Errorf("narrow pass: %w", err)
	}
	hits, err := s.describeVisible(ctx, doc, handles)
	if err != nil {
		return Result{}, false, err
	}

	var satisfying []described
	for _, h := range hits {
		if h.meta.Satisfies(hint.Value()) {
			satisfying = append(satisfying, h)
		}
	}
	s.logger.Debug("Narrow pass finished.",
		zap.String("search", search),
		zap.Int("hits", len(hits)),
		zap.Int("satisfying", len(satisfying)),
	)

	switch {
	case len(satisfying) == 1:
		return matched(satisfying[0], PassNarrow), true, nil
	case len(satisfying) > 1 && hint != descriptor.Any:
		// Several elements of the requested kind carry the text.
		res := Result{Ambiguous: true, Pass: PassNarrow}
		for _, h := range satisfying {
			res.Candidates = append(res.Candidates, h.meta)
		}
		return res, true, nil
	default:
		return Result{}, false, nil
	}
}

func (s *Scanner) broad(ctx context.Context, doc Document, search string, hint descriptor.LocatorType) (Result, error) {
	selector := interactiveSelector
	if s.opts.ExtendedSelectors {
		selector = extendedSelector
	}
	handles, err := doc.FindAll(ctx, selector, s.opts.MaxElements)
	if err != nil {
		return Result{}, fmt.Errorf("broad pass: %w", err)
	}

	visible, err := s.describeVisible(ctx, doc, handles)
	if err != nil {
		return Result{}, err
	}

	res := Result{Pass: PassBroad}
	for _, el := range visible {
		if search != "" {
			score, field := fuzzy.Best(search, el.meta.Values()...)
			if score > s.opts.Threshold && el.meta.Satisfies(hint.Value()) {
				s.logger.Debug("Broad pass matched.",
					zap.String("search", search),
					zap.Float64("score", score),
					zap.String("field", field),
				)
				return matched(el, PassBroad), nil
			}
		}
		res.Candidates = append(res.Candidates, el.meta)
	}
	return res, nil
}

// describeVisible reads metadata for each handle and keeps the visible ones.
// Elements that detach mid-scan are skipped; any other failure aborts the scan.
func (s *Scanner) describeVisible(ctx context.Context, doc Document, handles []dom.Handle) ([]described, error) {
	out := make([]described, 0, len(handles))
	for _, h := range handles {
		meta, visible, err := doc.Describe(ctx, h)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, dom.ErrDetached) {
			s.logger.Debug("Skipping detached element.", zap.Stringer("handle", h))
			continue
		}
		if err != nil {
			return nil, err
		}
		if visible {
			out = append(out, described{handle: h, meta: meta})
		}
	}
	return out, nil
}

func matched(d described, pass Pass) Result {
	h := d.handle
	return Result{
		Match:      &h,
		Matched:    d.meta,
		Candidates: []dom.Metadata{d.meta},
		Pass:       pass,
	}
}
