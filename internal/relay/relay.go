// Package relay mirrors a live page into a local document over a websocket.
// A page agent sends a snapshot and then every mutation; the relay feeds them
// through a Monitor and pushes alerts, annotations and offline notices back.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sprite-ai/blinky/internal/alert"
	"github.com/sprite-ai/blinky/internal/dom"
	"github.com/sprite-ai/blinky/internal/model"
	"github.com/sprite-ai/blinky/internal/monitor"
)

// NodeIDAttr is the attribute the page agent stamps on elements so mutations
// can address them.
const NodeIDAttr = "data-node-id"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024 * 64,
	WriteBufferSize: 1024 * 64,
	CheckOrigin: func(r *http.Request) bool {
		return true // page agents run on arbitrary origins
	},
}

// Message types from the page agent.
const (
	msgSnapshot = "snapshot"
	msgInsert   = "insert"
	msgText     = "text"
	msgRemove   = "remove"
	msgScan     = "scan"
	msgFlush    = "flush"
)

// Message types to the page agent.
const (
	msgReady    = "ready"
	msgAlert    = alert.KindAlert
	msgAnnotate = alert.KindAnnotate
	msgOffline  = alert.KindOffline
	msgSafe     = alert.KindSafe
	msgError    = "error"
)

// wsMessage is the envelope for WebSocket messages in both directions.
type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type snapshotMsg struct {
	URL  string `json:"url"`
	HTML string `json:"html"`
}

type insertMsg struct {
	Parent string `json:"parent,omitempty"` // empty means body
	HTML   string `json:"html"`
}

type textMsg struct {
	Node string `json:"node"`
	Text string `json:"text"`
}

type removeMsg struct {
	Node string `json:"node"`
}

type scanMsg struct {
	Text string `json:"text"`
}

type readyMsg struct {
	Context string `json:"context"`
	Nodes   int    `json:"nodes"`
}

// annotatePayload adds the node id so the agent can mark the element.
type annotatePayload struct {
	alert.Event
	Node string `json:"node,omitempty"`
}

// Relay serves page-agent connections. Each connection gets its own document
// and Monitor.
type Relay struct {
	classifier monitor.Classifier
	opts       monitor.Options
	extra      alert.Sink
}

// New creates a Relay. extra, when non-nil, also receives every output of
// every connection.
func New(c monitor.Classifier, opts monitor.Options, extra alert.Sink) *Relay {
	return &Relay{classifier: c, opts: opts, extra: extra}
}

// Handler returns the relay's routes.
func (rl *Relay) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", rl.ServeWS)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// ServeWS upgrades the request and runs one session until the agent
// disconnects.
func (rl *Relay) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &session{relay: rl, out: &connWriter{conn: conn}, ctx: ctx}
	defer s.stop()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("websocket read")
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.out.sendError("invalid message format")
			continue
		}
		if err := s.handle(msg); err != nil {
			s.out.sendError(err.Error())
		}
	}
}

// session is the state of one connection.
type session struct {
	relay *Relay
	out   *connWriter
	ctx   context.Context

	doc *dom.Document
	mon *monitor.Monitor
}

func (s *session) handle(msg wsMessage) error {
	switch msg.Type {
	case msgSnapshot:
		var req snapshotMsg
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return fmt.Errorf("invalid snapshot data")
		}
		return s.snapshot(req)
	}

	if s.doc == nil {
		return fmt.Errorf("no snapshot loaded")
	}

	switch msg.Type {
	case msgInsert:
		var req insertMsg
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return fmt.Errorf("invalid insert data")
		}
		parent := s.doc.Body()
		if req.Parent != "" {
			if parent = s.node(req.Parent); parent == nil {
				return fmt.Errorf("unknown node %q", req.Parent)
			}
		}
		nodes, err := dom.ParseFragment(strings.NewReader(req.HTML))
		if err != nil {
			return fmt.Errorf("parsing html: %w", err)
		}
		for _, n := range nodes {
			if err := s.doc.AppendChild(parent, n); err != nil {
				return err
			}
		}
	case msgText:
		var req textMsg
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return fmt.Errorf("invalid text data")
		}
		n := s.node(req.Node)
		if n == nil {
			return fmt.Errorf("unknown node %q", req.Node)
		}
		if err := s.doc.SetText(n, req.Text); err != nil {
			return err
		}
	case msgRemove:
		var req removeMsg
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return fmt.Errorf("invalid remove data")
		}
		n := s.node(req.Node)
		if n == nil {
			return fmt.Errorf("unknown node %q", req.Node)
		}
		if err := s.doc.RemoveChild(n); err != nil {
			return err
		}
	case msgScan:
		var req scanMsg
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return fmt.Errorf("invalid scan data")
		}
		if !s.mon.ScanAsync(req.Text) {
			return monitor.ErrStopped
		}
		return nil
	case msgFlush:
		s.mon.Aggregator().Flush()
		return nil
	default:
		return fmt.Errorf("unknown message type: %s", msg.Type)
	}

	s.doc.Flush()
	return nil
}

func (s *session) node(id string) *dom.Node {
	return s.doc.FindByAttr(NodeIDAttr, id)
}

// snapshot replaces the mirrored document and restarts monitoring.
func (s *session) snapshot(req snapshotMsg) error {
	doc, err := dom.ParseHTML(strings.NewReader(req.HTML), req.URL)
	if err != nil {
		return fmt.Errorf("parsing snapshot: %w", err)
	}
	s.stop()

	var sink alert.Sink = s.out
	if s.relay.extra != nil {
		sink = alert.Multi{s.relay.extra, s.out}
	}
	mon := monitor.New(doc, s.relay.classifier, sink, s.relay.opts)
	if err := mon.Start(s.ctx); err != nil {
		return err
	}
	s.doc, s.mon = doc, mon

	nodes := 0
	doc.Body().Walk(func(*dom.Node) bool { nodes++; return true })
	s.out.send(msgReady, readyMsg{Context: string(mon.Context()), Nodes: nodes})
	return nil
}

func (s *session) stop() {
	if s.mon != nil {
		s.mon.Stop()
		s.mon = nil
	}
}

// connWriter is the per-connection alert sink. gorilla connections allow a
// single concurrent writer, so every send is serialized.
type connWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *connWriter) send(msgType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Msg("ws marshal")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(wsMessage{Type: msgType, Data: raw}); err != nil {
		log.Warn().Err(err).Msg("ws write")
	}
}

func (c *connWriter) sendError(msg string) {
	c.send(msgError, map[string]string{"message": msg})
}

func (c *connWriter) Alert(a model.CombinedAlert, h model.DisplayHint) {
	c.send(msgAlert, alert.AlertEvent(a, h))
}

func (c *connWriter) Offline(err error) {
	c.send(msgOffline, alert.OfflineEvent(err, time.Now()))
}

func (c *connWriter) Annotate(an model.Annotation) {
	p := annotatePayload{Event: alert.AnnotationEvent(an)}
	p.Node = an.Fragment.Source.Attr(NodeIDAttr)
	c.send(msgAnnotate, p)
}

func (c *connWriter) Safe(f model.Fragment) {
	c.send(msgSafe, alert.SafeEvent(f, time.Now()))
}
