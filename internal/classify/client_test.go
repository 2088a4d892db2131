package classify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sprite-ai/blinky/internal/model"
)

func serve(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL, 0)
}

func TestClassifySuccess(t *testing.T) {
	var got AnalyzeRequest
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/analyze" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"success":true,"data":{"is_safe":false,"threat_level":"HIGH","score":75,
			"blinky_emotion":"sobbing","findings":["Bullying language detected: stupid"],
			"suggestions":["Block this person"]}}`))
	})

	v, err := c.Classify(context.Background(), model.Fragment{Text: "you're so stupid", Context: model.ContextDiscord})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.Text != "you're so stupid" || got.Context != "discord" {
		t.Errorf("unexpected request body %+v", got)
	}
	if v.IsSafe || v.Score != 75 || v.Level != model.LevelHigh || v.Mood != model.MoodSobbing {
		t.Errorf("unexpected verdict %+v", v)
	}
	if len(v.Findings) != 1 || len(v.Suggestions) != 1 {
		t.Errorf("expected findings and suggestions, got %+v", v)
	}
}

func TestClassifyDefaultsContext(t *testing.T) {
	var got AnalyzeRequest
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"success":true,"data":{"is_safe":true,"score":0}}`))
	})
	if _, err := c.Classify(context.Background(), model.Fragment{Text: "hi there"}); err != nil {
		t.Fatal(err)
	}
	if got.Context != "general" {
		t.Errorf("expected general context, got %q", got.Context)
	}
}

func TestClassifyAbsentFieldsDegrade(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":{"is_safe":false,"score":45}}`))
	})
	v, err := c.Classify(context.Background(), model.Fragment{Text: "x y z"})
	if err != nil {
		t.Fatal(err)
	}
	if v.Level != model.LevelMedium {
		t.Errorf("expected level derived from score, got %s", v.Level)
	}
	if v.Mood != model.MoodSingleCry {
		t.Errorf("expected mood derived from level, got %q", v.Mood)
	}
	if len(v.Findings) != 0 || len(v.Suggestions) != 0 {
		t.Errorf("expected empty findings/suggestions, got %+v", v)
	}
}

func TestClassifyErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		offline bool
		service bool
	}{
		{"server error", http.StatusInternalServerError, `{"detail":"boom"}`, true, false},
		{"not found", http.StatusNotFound, ``, true, false},
		{"malformed json", http.StatusOK, `not json`, true, false},
		{"missing data", http.StatusOK, `{"success":true}`, true, false},
		{"service failure", http.StatusOK, `{"success":false}`, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := serve(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := c.Classify(context.Background(), model.Fragment{Text: "hello there"})
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.Is(err, ErrOffline) != tt.offline {
				t.Errorf("errors.Is(err, ErrOffline) = %v, want %v (%v)", !tt.offline, tt.offline, err)
			}
			if errors.Is(err, ErrService) != tt.service {
				t.Errorf("errors.Is(err, ErrService) = %v, want %v (%v)", !tt.service, tt.service, err)
			}
		})
	}
}

func TestClassifyUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, 0).Classify(context.Background(), model.Fragment{Text: "hello there"})
	if !errors.Is(err, ErrOffline) {
		t.Errorf("expected ErrOffline, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"status":"healthy"}`))
	})
	status, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if m, ok := status.(map[string]any); !ok || m["status"] != "healthy" {
		t.Errorf("unexpected status %v", status)
	}
}

func TestChat(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(ChatResponse{Success: true, Response: "echo: " + req.Message})
	})
	resp, err := c.Chat(context.Background(), "hi")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Response != "echo: hi" {
		t.Errorf("unexpected response %q", resp.Response)
	}
}
