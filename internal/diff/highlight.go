package diff

import (
	"path/filepath"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// DefaultStyle is the chroma style used for snippets.
const DefaultStyle = "dracula"

// HighlightedLine is one line of a snippet split into colored tokens.
type HighlightedLine struct {
	Tokens []Token
}

// Token is a syntax-highlighted chunk of text.
type Token struct {
	Text  string
	Color string // hex color, empty for default
}

// Plain returns the concatenated plain text of all tokens.
func (hl HighlightedLine) Plain() string {
	var b strings.Builder
	for _, t := range hl.Tokens {
		b.WriteString(t.Text)
	}
	return b.String()
}

// HighlightMarkup renders element markup one tag per line, highlighted as
// HTML. It is what the dashboard shows for a flagged element.
func HighlightMarkup(markup string) []HighlightedLine {
	if markup == "" {
		return nil
	}
	markup = strings.ReplaceAll(markup, "><", ">\n<")
	return HighlightLines("html", strings.Split(markup, "\n"))
}

// HighlightLines highlights lines using the lexer named lang, which may be
// a language name ("html") or a file name ("chat.log"). Unknown languages pass
// through as plain text. One HighlightedLine is returned per input line.
func HighlightLines(lang string, lines []string) []HighlightedLine {
	lexer := lexerFor(lang)
	if lexer == nil {
		return plainLines(lines)
	}

	iterator, err := lexer.Tokenise(nil, strings.Join(lines, "\n"))
	if err != nil {
		return plainLines(lines)
	}

	style := styles.Get(DefaultStyle)
	if style == nil {
		style = styles.Fallback
	}

	result := make([]HighlightedLine, 0, len(lines))
	current := HighlightedLine{}
	for _, token := range iterator.Tokens() {
		// Tokens may span lines.
		for i, part := range strings.Split(token.Value, "\n") {
			if i > 0 {
				result = append(result, current)
				current = HighlightedLine{}
			}
			if part != "" {
				current.Tokens = append(current.Tokens, Token{Text: part, Color: tokenColor(style, token.Type)})
			}
		}
	}
	result = append(result, current)

	for len(result) < len(lines) {
		result = append(result, HighlightedLine{})
	}
	return result[:len(lines)]
}

func plainLines(lines []string) []HighlightedLine {
	result := make([]HighlightedLine, len(lines))
	for i, line := range lines {
		result[i] = HighlightedLine{Tokens: []Token{{Text: line}}}
	}
	return result
}

func lexerFor(lang string) chroma.Lexer {
	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Match(lang)
	}
	if lexer == nil {
		if ext := filepath.Ext(lang); ext != "" {
			lexer = lexers.Match("file" + ext)
		}
	}
	if lexer != nil {
		lexer = chroma.Coalesce(lexer)
	}
	return lexer
}

func tokenColor(style *chroma.Style, tt chroma.TokenType) string {
	entry := style.Get(tt)
	if entry.Colour.IsSet() {
		return entry.Colour.String()
	}
	return ""
}
