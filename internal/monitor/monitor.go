// Package monitor wires the pipeline for one monitored document: watcher,
// filter, classification, aggregation and alert delivery.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sprite-ai/blinky/internal/aggregate"
	"github.com/sprite-ai/blinky/internal/alert"
	"github.com/sprite-ai/blinky/internal/clock"
	"github.com/sprite-ai/blinky/internal/dom"
	"github.com/sprite-ai/blinky/internal/extract"
	"github.com/sprite-ai/blinky/internal/filter"
	"github.com/sprite-ai/blinky/internal/model"
	"github.com/sprite-ai/blinky/internal/watch"
)

// Sweep length bounds. Whole-page sweeps see more chrome than incremental
// changes, so the floor is higher.
const (
	DefaultSweepMinLength = 5
	DefaultSweepMaxLength = 1000
)

// ErrStopped is returned by operations on a stopped monitor.
var ErrStopped = errors.New("monitor stopped")

// Classifier is the classification boundary. *classify.Client satisfies it.
type Classifier interface {
	Classify(ctx context.Context, f model.Fragment) (model.Verdict, error)
}

// Options configures a Monitor. Zero values take defaults.
type Options struct {
	// Context overrides the site context derived from the document URL.
	Context      model.SiteContext
	Marker       *dom.Marker
	Filter       filter.Filter
	SweepFilter  filter.Filter
	InitialSweep bool
	Aggregate    aggregate.Config
	Clock        clock.Clock
}

// Monitor owns the pipeline state for one document lifetime.
type Monitor struct {
	doc        *dom.Document
	classifier Classifier
	sink       *serialSink
	context    model.SiteContext
	extractor  *extract.Extractor
	watcher    *watch.Watcher
	agg        *aggregate.Aggregator
	opts       Options

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

// New builds a Monitor for doc. Nothing is observed until Start.
func New(doc *dom.Document, c Classifier, sink alert.Sink, opts Options) *Monitor {
	if opts.SweepFilter == (filter.Filter{}) {
		opts.SweepFilter = filter.New(DefaultSweepMinLength, DefaultSweepMaxLength)
	}
	marker := dom.DefaultMarker()
	if opts.Marker != nil {
		marker = *opts.Marker
	}
	ctx := opts.Context
	if ctx == "" {
		ctx = contextFor(doc.URL)
	}

	m := &Monitor{
		doc:        doc,
		classifier: c,
		sink:       &serialSink{sink: sink},
		context:    ctx,
		opts:       opts,
	}
	m.extractor = extract.New(marker, ctx)
	m.agg = aggregate.New(opts.Aggregate, opts.Clock, aggregate.Ports{
		Inline:   m.sink.Annotate,
		Combined: m.sink.Alert,
	})
	m.watcher = watch.New(doc, m.extractor, opts.Filter, m.Dispatch)
	return m
}

func contextFor(raw string) model.SiteContext {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return model.ContextGeneral
	}
	return model.DetectContext(u.Hostname())
}

// Context returns the site context attached to every fragment.
func (m *Monitor) Context() model.SiteContext { return m.context }

// Aggregator exposes the aggregator for inspection and manual flushes.
func (m *Monitor) Aggregator() *aggregate.Aggregator { return m.agg }

// Document returns the monitored document.
func (m *Monitor) Document() *dom.Document { return m.doc }

// Start subscribes to the document and, when configured, sweeps its current
// content. Classification calls are bound to ctx.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrStopped
	}
	if m.ctx != nil {
		m.mu.Unlock()
		return fmt.Errorf("monitor already started")
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	log.Info().Str("url", m.doc.URL).Str("context", string(m.context)).Msg("monitoring document")
	m.watcher.Start()
	if m.opts.InitialSweep {
		m.Sweep()
	}
	return nil
}

// Sweep dispatches every sweep-eligible leaf of the current document and
// returns how many were dispatched.
func (m *Monitor) Sweep() int {
	n := 0
	for _, f := range m.extractor.Sweep(m.doc) {
		if m.opts.SweepFilter.IsCandidate(f.Text) {
			m.Dispatch(f)
			n++
		}
	}
	log.Debug().Int("dispatched", n).Msg("document sweep")
	return n
}

// Dispatch classifies f in the background. There is no queue: every
// candidate gets its own call and results reach the aggregator in the order
// they complete.
func (m *Monitor) Dispatch(f model.Fragment) {
	m.mu.Lock()
	if m.stopped || m.ctx == nil {
		m.mu.Unlock()
		return
	}
	ctx := m.ctx
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		m.classify(ctx, f)
	}()
}

func (m *Monitor) classify(ctx context.Context, f model.Fragment) {
	v, err := m.classifier.Classify(ctx, f)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Msg("classification failed")
		m.sink.Offline(err)
		return
	}
	log.Debug().Int("score", v.Score).Str("threat_level", v.Level.String()).Msg("verdict")
	m.agg.Submit(v, f)
}

// AnalyzeText runs a manual scan of text: no noise filter, context manual.
// Below-threshold results produce a safe notice for sinks that want one.
func (m *Monitor) AnalyzeText(ctx context.Context, text string) (model.Verdict, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Verdict{}, fmt.Errorf("analyze: empty text")
	}
	f := model.Fragment{Text: text, Context: model.ContextManual}
	v, err := m.classifier.Classify(ctx, f)
	if err != nil {
		if ctx.Err() == nil {
			m.sink.Offline(err)
		}
		return model.Verdict{}, err
	}
	if !m.agg.Submit(v, f) {
		m.sink.Safe(f)
	}
	return v, nil
}

// ScanAsync runs AnalyzeText in the background, bound to the monitor's
// lifetime: Stop cancels it and waits for it. Failures reach the sinks as an
// offline notice. It reports false when the monitor is not running.
func (m *Monitor) ScanAsync(text string) bool {
	m.mu.Lock()
	if m.stopped || m.ctx == nil {
		m.mu.Unlock()
		return false
	}
	ctx := m.ctx
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		_, _ = m.AnalyzeText(ctx, text)
	}()
	return true
}

// Wait blocks until every in-flight classification and background scan has
// finished.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

// Stop unsubscribes, abandons in-flight calls and flushes whatever is
// buffered. The monitor cannot be restarted.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	cancel := m.cancel
	m.mu.Unlock()

	m.watcher.Stop()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	m.agg.Close()
	log.Info().Str("url", m.doc.URL).Msg("monitoring stopped")
}

// serialSink serializes every call into the underlying sink, since alerts,
// annotations and offline notices originate on different goroutines.
type serialSink struct {
	mu   sync.Mutex
	sink alert.Sink
}

func (s *serialSink) Alert(a model.CombinedAlert, h model.DisplayHint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink.Alert(a, h)
}

func (s *serialSink) Offline(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink.Offline(err)
}

func (s *serialSink) Annotate(an model.Annotation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.sink.(alert.Annotator); ok {
		a.Annotate(an)
	}
}

func (s *serialSink) Safe(f model.Fragment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.sink.(alert.SafeNotifier); ok {
		n.Safe(f)
	}
}
