package alert

import (
	"github.com/rs/zerolog"

	"github.com/sprite-ai/blinky/internal/model"
)

// LogSink writes every output as a structured log line.
type LogSink struct {
	Logger zerolog.Logger
}

// NewLogSink returns a sink logging through l.
func NewLogSink(l zerolog.Logger) *LogSink {
	return &LogSink{Logger: l}
}

func (s *LogSink) Alert(a model.CombinedAlert, h model.DisplayHint) {
	ev := s.Logger.Warn()
	if a.Level == model.LevelHigh {
		ev = s.Logger.Error()
	}
	ev.Str("alert_id", a.ID).
		Str("threat_level", a.Level.String()).
		Str("mood", string(a.Mood)).
		Int("sources", a.SourceCount).
		Strs("findings", a.Findings).
		Strs("suggestions", a.Suggestions).
		Bool("auto_dismiss", h.AutoDismiss).
		Msg("threat alert")
}

func (s *LogSink) Offline(err error) {
	s.Logger.Warn().Err(err).Msg("classification service offline")
}

func (s *LogSink) Annotate(an model.Annotation) {
	ev := s.Logger.Info().
		Str("annotation_id", an.ID).
		Int("score", an.Verdict.Score).
		Str("threat_level", an.Verdict.Level.String())
	if an.Fragment.Source != nil {
		ev = ev.Str("path", an.Fragment.Source.Path)
	}
	ev.Msg("flagged element")
}

func (s *LogSink) Safe(f model.Fragment) {
	s.Logger.Info().Str("context", string(f.Context)).Msg("this message looks safe")
}
