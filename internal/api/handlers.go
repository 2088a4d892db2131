package api

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sprite-ai/blinky/internal/classify"
)

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": ServiceName})
}

// --- Analyze ---

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req classify.AnalyzeRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	res := s.analyzer.Analyze(r.Context(), req.Text, req.Context)
	log.Debug().
		Str("context", res.Context).
		Int("score", res.Score).
		Str("threat_level", res.ThreatLabel()).
		Int("findings", len(res.Findings)).
		Msg("analyzed text")

	label := res.ThreatLabel()
	data := classify.AnalyzeData{
		IsSafe:      res.IsSafe,
		ThreatLevel: &label,
		Score:       float64(res.Score),
		Emotion:     string(res.Mood),
		Findings:    nonNil(res.Findings),
		Suggestions: nonNil(res.Suggestions),
		Context:     res.Context,
	}
	writeJSON(w, http.StatusOK, classify.AnalyzeResponse{Success: true, Data: &data})
}

// --- Chat ---

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req classify.ChatRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	reply, err := s.chat.Reply(r.Context(), msg)
	if err != nil {
		log.Warn().Err(err).Msg("chat responder failed")
		writeJSON(w, http.StatusOK, classify.ChatResponse{Success: false})
		return
	}

	html, err := renderMarkdown(reply)
	if err != nil {
		log.Warn().Err(err).Msg("render chat reply")
	}
	writeJSON(w, http.StatusOK, classify.ChatResponse{Success: true, Response: reply, ResponseHTML: html})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
