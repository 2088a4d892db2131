package filter

import (
	"strings"
	"testing"
)

func TestIsCandidate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"message", "you're so stupid", true},
		{"short message", "lol ok", true},
		{"min length", "hi!", true},
		{"question", "where do you live?", true},
		{"empty", "", false},
		{"whitespace", "   \n\t", false},
		{"too short", "hi", false},
		{"timestamp", "3:45PM", false},
		{"timestamp spaced", "11:02 am", false},
		{"single token", "menu", false},
		{"css class", "message-content", false},
		{"icon class", "ic-close icon", false},
		{"today", "Today at 4:12 PM", false},
		{"yesterday", "Yesterday at 9:00 AM", false},
		{"date", "3/14/2024 at noon", false},
		{"month date", "Jan 5, 2024", false},
		{"send label", "Send", false},
		{"ok label", "OK, got it", false},
		{"react label", "React to message from Sam", false},
		{"reply label", "Reply to message", false},
		{"you sent", "You sent an attachment", false},
		{"voice", "Play voice message", false},
		{"own vocabulary", "Blinky Safety Alert", false},
		{"own findings", "What I noticed: findings", false},
		{"own suggestion", "Suggestion: tell an adult", false},
		{"threat wording", "HIGH threat level", false},
		{"detected wording", "Bullying language detected: stupid", false},
		{"emoji picker", "Open emoji picker", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCandidate(tt.text); got != tt.want {
				t.Errorf("IsCandidate(%q) = %v, want %v (category %q)", tt.text, got, tt.want, ChromeCategory(tt.text))
			}
		})
	}
}

func TestIsCandidateBounds(t *testing.T) {
	long := strings.Repeat("ab ", 200) // 600 runes
	if IsCandidate(long) {
		t.Error("expected text over default max to be rejected")
	}

	f := New(3, 1000)
	if !f.IsCandidate(long) {
		t.Error("expected text under configured max to be accepted")
	}

	exact := "a b" + strings.Repeat(" c", 1)
	if !New(3, len(exact)).IsCandidate(exact) {
		t.Errorf("expected upper bound to be inclusive for %q", exact)
	}

	if New(5, 500).IsCandidate("ok ok") != true {
		t.Error("expected lower bound to be inclusive")
	}
	if New(6, 500).IsCandidate("ok ok") {
		t.Error("expected text below configured min to be rejected")
	}
}

func TestIsCandidateCountsRunes(t *testing.T) {
	// Three runes, nine bytes.
	if !New(3, 3).IsCandidate("日 本") {
		t.Error("expected length to be measured in runes")
	}
}

func TestChromeCategory(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"ic-send", "icons"},
		{"3:45PM", "timestamps"},
		{"sidebar", "css-like"},
		{"Send", "css-like"},
		{"OK, got it", "interaction labels"},
		{"ask blinky", "self"},
		{"you are mean", ""},
	}
	for _, tt := range tests {
		if got := ChromeCategory(tt.text); got != tt.want {
			t.Errorf("ChromeCategory(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestLooksLikeMessage(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"are you coming to the party tonight", true},
		{"12:30 see you", false},
		{"Today we ride", false},
		{"hello", false},
		{"!!! ??? ...", false},
		{"42 17 99", false},
	}
	for _, tt := range tests {
		if got := LooksLikeMessage(tt.text); got != tt.want {
			t.Errorf("LooksLikeMessage(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
