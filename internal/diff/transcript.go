// Package diff ingests chat transcripts recorded as unified diffs and
// replays the added lines into a document, so logs can be scanned with the
// same pipeline as a live page.
package diff

import (
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"

	"github.com/sprite-ai/blinky/internal/dom"
)

// Line is one added transcript line.
type Line struct {
	Number int // line number in the new file
	Author string
	Text   string
}

// Transcript is the added content of one file in a diff.
type Transcript struct {
	OldName      string
	NewName      string
	IsNew        bool
	IsDeleted    bool
	Lines        []Line
	DeletedLines int
}

// Name returns the display name for the transcript.
func (t *Transcript) Name() string {
	if t.NewName != "" {
		return t.NewName
	}
	return t.OldName
}

// Set holds every transcript in a diff.
type Set struct {
	Transcripts []*Transcript
	Raw         string
}

// Stats returns aggregate statistics.
func (s *Set) Stats() (files, added, deleted int) {
	files = len(s.Transcripts)
	for _, t := range s.Transcripts {
		added += len(t.Lines)
		deleted += t.DeletedLines
	}
	return
}

// "[10:45] sam: text", "sam: text" or "<sam> text".
var speaker = regexp.MustCompile(`^(?:\[[^\]]*\]\s*)?(?:<([^>]{1,40})>|([\w.\- ]{1,40}):)\s+(.*)$`)

// splitSpeaker separates a leading author label from the message text.
func splitSpeaker(s string) (author, text string) {
	m := speaker.FindStringSubmatch(s)
	if m == nil {
		return "", s
	}
	author = m[1]
	if author == "" {
		author = strings.TrimSpace(m[2])
	}
	return author, m[3]
}

// Parse reads a unified diff and returns the added lines of each file.
// Binary and pure-deletion files yield transcripts with no lines.
func Parse(raw string) (*Set, error) {
	parsed, _, err := gitdiff.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing diff: %w", err)
	}

	set := &Set{Raw: raw}
	for _, f := range parsed {
		t := &Transcript{
			OldName:   f.OldName,
			NewName:   f.NewName,
			IsNew:     f.IsNew,
			IsDeleted: f.IsDelete,
		}
		for _, frag := range f.TextFragments {
			n := int(frag.NewPosition)
			for _, line := range frag.Lines {
				switch line.Op {
				case gitdiff.OpAdd:
					text := strings.TrimRight(line.Line, "\r\n")
					if strings.TrimSpace(text) != "" {
						author, msg := splitSpeaker(text)
						t.Lines = append(t.Lines, Line{Number: n, Author: author, Text: msg})
					}
					n++
				case gitdiff.OpContext:
					n++
				case gitdiff.OpDelete:
					t.DeletedLines++
				}
			}
		}
		set.Transcripts = append(set.Transcripts, t)
	}
	return set, nil
}

// Apply appends every added line to doc as a chat message, one container
// per transcript, flushing after each transcript so observers see one batch
// per file. It returns the number of messages inserted.
func Apply(set *Set, doc *dom.Document) (int, error) {
	inserted := 0
	for _, t := range set.Transcripts {
		if len(t.Lines) == 0 {
			continue
		}
		container := doc.FindByAttr("data-file", t.Name())
		if container == nil {
			// A new transcript goes in as one subtree so each message is
			// observed once.
			container = dom.NewElement("div", map[string]string{"class": "transcript", "data-file": t.Name()})
			for _, l := range t.Lines {
				container.Append(messageNode(l))
			}
			if err := doc.AppendChild(doc.Body(), container); err != nil {
				return inserted, err
			}
			inserted += len(t.Lines)
		} else {
			for _, l := range t.Lines {
				if err := doc.AppendChild(container, messageNode(l)); err != nil {
					return inserted, err
				}
				inserted++
			}
		}
		doc.Flush()
	}
	return inserted, nil
}

func messageNode(l Line) *dom.Node {
	msg := dom.NewElement("div", map[string]string{"class": "message", "data-line": fmt.Sprint(l.Number)})
	if l.Author != "" {
		msg.Append(dom.NewElement("span", map[string]string{"class": "author"}).Append(dom.NewText(l.Author)))
	}
	return msg.Append(dom.NewElement("p", map[string]string{"class": "text"}).Append(dom.NewText(l.Text)))
}

// GitDiff runs `git diff` with the given arguments and returns the raw output.
func GitDiff(repoDir string, args ...string) (string, error) {
	cmdArgs := append([]string{"diff"}, args...)
	cmd := exec.Command("git", cmdArgs...)
	cmd.Dir = repoDir
	cmd.Stderr = os.Stderr

	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git diff: %w", err)
	}
	return string(out), nil
}

// GitDiffRange returns the diff for a commit range like "main...HEAD",
// restricted to paths when given.
func GitDiffRange(repoDir, commitRange string, paths ...string) (string, error) {
	args := []string{"-U0", commitRange}
	if len(paths) > 0 {
		args = append(append(args, "--"), paths...)
	}
	return GitDiff(repoDir, args...)
}
