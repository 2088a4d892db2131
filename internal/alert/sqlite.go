package alert

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/sprite-ai/blinky/internal/model"
)

// HistorySink keeps alerts, annotations and offline notices in a SQLite
// database so they can be reviewed after the page is gone.
type HistorySink struct {
	path string
	db   *sql.DB
	now  func() time.Time
}

const historySchema = `CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    level TEXT,
    mood TEXT,
    score INTEGER,
    findings TEXT,
    suggestions TEXT,
    source_count INTEGER,
    excerpts TEXT,
    text TEXT,
    path TEXT,
    context TEXT,
    error TEXT,
    time TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS events_time ON events(time);`

// historyTime sorts lexically in time order.
const historyTime = "2006-01-02T15:04:05.000000000Z"

// NewHistorySink opens (or creates) the database at path.
func NewHistorySink(path string) (*HistorySink, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("could not set WAL mode")
	}
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &HistorySink{path: path, db: db, now: time.Now}, nil
}

func (s *HistorySink) Name() string { return "sqlite:" + s.path }

func (s *HistorySink) Alert(a model.CombinedAlert, h model.DisplayHint) {
	s.save(AlertEvent(a, h))
}

func (s *HistorySink) Offline(err error) {
	s.save(OfflineEvent(err, s.now()))
}

func (s *HistorySink) Annotate(an model.Annotation) {
	s.save(AnnotationEvent(an))
}

func (s *HistorySink) save(ev Event) {
	if err := s.Save(ev); err != nil {
		log.Error().Err(err).Str("sink", s.Name()).Str("kind", ev.Kind).Msg("history write failed")
	}
}

// Save stores one event. Events without an id get a fresh one.
func (s *HistorySink) Save(ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Time.IsZero() {
		ev.Time = s.now()
	}
	findings, _ := json.Marshal(ev.Findings)
	suggestions, _ := json.Marshal(ev.Suggestions)
	excerpts, _ := json.Marshal(ev.Excerpts)

	_, err := s.db.Exec(`INSERT OR REPLACE INTO events(id, kind, level, mood, score, findings, suggestions, source_count, excerpts, text, path, context, error, time)
VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		ev.ID, ev.Kind, ev.Level, ev.Mood, ev.Score, string(findings), string(suggestions), ev.SourceCount,
		string(excerpts), ev.Text, ev.Path, ev.Context, ev.Error, ev.Time.UTC().Format(historyTime))
	return err
}

// List returns the most recent events, newest first. An empty kind matches
// every kind.
func (s *HistorySink) List(kind string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT id, kind, level, mood, score, findings, suggestions, source_count, excerpts, text, path, context, error, time
FROM events WHERE (? = '' OR kind = ?) ORDER BY time DESC, rowid DESC LIMIT ?`, kind, kind, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var (
			ev                              Event
			findings, suggestions, excerpts string
			ts                              string
		)
		if err := rows.Scan(&ev.ID, &ev.Kind, &ev.Level, &ev.Mood, &ev.Score, &findings, &suggestions,
			&ev.SourceCount, &excerpts, &ev.Text, &ev.Path, &ev.Context, &ev.Error, &ts); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(findings), &ev.Findings)
		json.Unmarshal([]byte(suggestions), &ev.Suggestions)
		json.Unmarshal([]byte(excerpts), &ev.Excerpts)
		if t, err := time.Parse(historyTime, ts); err == nil {
			ev.Time = t
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *HistorySink) Close() error {
	return s.db.Close()
}
