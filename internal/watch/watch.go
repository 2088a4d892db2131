// Package watch turns document mutation batches into candidate fragments.
package watch

import (
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sprite-ai/blinky/internal/dom"
	"github.com/sprite-ai/blinky/internal/extract"
	"github.com/sprite-ai/blinky/internal/filter"
	"github.com/sprite-ai/blinky/internal/model"
)

// Dispatch receives each candidate fragment as soon as it is found. It must
// not block for long; the watcher keeps no queue.
type Dispatch func(model.Fragment)

// Watcher subscribes to one document and forwards filtered fragments.
type Watcher struct {
	doc       *dom.Document
	extractor *extract.Extractor
	filter    filter.Filter
	dispatch  Dispatch

	mu     sync.Mutex
	cancel func()
}

// New creates a Watcher. It does nothing until Start.
func New(doc *dom.Document, ex *extract.Extractor, f filter.Filter, dispatch Dispatch) *Watcher {
	return &Watcher{doc: doc, extractor: ex, filter: f, dispatch: dispatch}
}

// Start subscribes to the document. Calling it twice is a no-op.
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	w.cancel = w.doc.Observe(w.handle)
}

// Stop unsubscribes. Batches already being delivered may still dispatch.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
}

// Running reports whether the watcher is subscribed.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}

func (w *Watcher) handle(batch []dom.MutationRecord) {
	frags := w.Candidates(batch)
	if len(frags) > 0 {
		log.Debug().Int("records", len(batch)).Int("candidates", len(frags)).Msg("mutation batch")
	}
	for _, f := range frags {
		w.dispatch(f)
	}
}

// Candidates returns, in record order, the fragments a batch produces after
// filtering. Records targeting the monitor's own UI are ignored.
func (w *Watcher) Candidates(batch []dom.MutationRecord) []model.Fragment {
	marker := w.extractor.Marker
	var out []model.Fragment
	keep := func(f model.Fragment) {
		if w.filter.IsCandidate(f.Text) {
			out = append(out, f)
		}
	}

	for _, rec := range batch {
		if rec.Target == nil || marker.Owns(rec.Target) {
			continue
		}
		switch rec.Type {
		case dom.ChildList:
			for _, n := range rec.Added {
				if marker.Marks(n) {
					continue
				}
				switch n.Type {
				case dom.ElementNode:
					for _, f := range w.extractor.Extract(n) {
						keep(f)
					}
				case dom.TextNode:
					if f, ok := w.textFragment(n); ok {
						keep(f)
					}
				}
			}
		case dom.CharacterData:
			if f, ok := w.textFragment(rec.Target); ok {
				keep(f)
			}
		}
	}
	return out
}

// textFragment resolves a text node to a fragment located at its parent
// element.
func (w *Watcher) textFragment(n *dom.Node) (model.Fragment, bool) {
	text := strings.TrimSpace(n.Data)
	if text == "" {
		return model.Fragment{}, false
	}
	f := model.Fragment{Text: text, Context: w.extractor.Context}
	if p := n.Parent(); p != nil {
		f.Source = p.Locate()
	}
	return f, true
}
