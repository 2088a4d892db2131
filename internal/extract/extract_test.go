package extract

import (
	"slices"
	"strings"
	"testing"

	"github.com/sprite-ai/blinky/internal/dom"
	"github.com/sprite-ai/blinky/internal/model"
)

const chatPage = `<html><body>
<div id="app">
  <ul class="messages">
    <li><div class="author">sam</div><div class="message-text">are you coming tonight</div></li>
    <li><div class="message-text">you're so <b>stupid</b></div></li>
    <li><div class="message-text"><span><span>deeply nested hello</span></span></div></li>
    <li><img src="x.png"></li>
  </ul>
  <section><article>plain article text</article></section>
</div>
<div class="blinky-notification"><span>HIGH</span><div>Bullying language</div></div>
</body></html>`

func parse(t *testing.T) *dom.Document {
	t.Helper()
	d, err := dom.ParseHTML(strings.NewReader(chatPage), "https://discord.com")
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func texts(frags []model.Fragment) []string {
	var out []string
	for _, f := range frags {
		out = append(out, f.Text)
	}
	return out
}

func TestExtractLeafOnly(t *testing.T) {
	d := parse(t)
	e := New(dom.DefaultMarker(), model.ContextDiscord)

	got := texts(e.Extract(d.Body()))
	want := []string{"sam", "are you coming tonight", "stupid", "deeply nested hello", "plain article text"}
	if !slices.Equal(got, want) {
		t.Errorf("Extract() = %q, want %q", got, want)
	}
}

func TestExtractNeverYieldsAncestorAndDescendant(t *testing.T) {
	d := parse(t)
	e := New(dom.DefaultMarker(), model.ContextGeneral)
	frags := e.Extract(d.Body())

	for i, a := range frags {
		for j, b := range frags {
			if i == j {
				continue
			}
			if strings.HasPrefix(b.Source.Path, a.Source.Path+" > ") {
				t.Errorf("fragment %q contains fragment %q", a.Text, b.Text)
			}
		}
	}
}

func TestExtractSkipsMonitorUI(t *testing.T) {
	d := parse(t)
	e := New(dom.DefaultMarker(), model.ContextGeneral)

	for _, f := range e.Extract(d.Body()) {
		if f.Text == "HIGH" || f.Text == "Bullying language" {
			t.Errorf("extracted monitor UI text %q", f.Text)
		}
	}

	var panel *dom.Node
	d.Body().Walk(func(n *dom.Node) bool {
		if n.HasClassContaining("blinky-notification") {
			panel = n
		}
		return panel == nil
	})
	if got := e.Extract(panel.Children()[1]); len(got) != 0 {
		t.Errorf("expected nothing from inside the panel, got %q", texts(got))
	}
}

func TestExtractTextRoot(t *testing.T) {
	e := New(dom.DefaultMarker(), model.ContextWhatsApp)
	frags := e.Extract(dom.NewText("  hello there  "))
	if len(frags) != 1 || frags[0].Text != "hello there" {
		t.Fatalf("unexpected fragments %q", texts(frags))
	}
	if frags[0].Context != model.ContextWhatsApp {
		t.Errorf("expected context to be carried, got %q", frags[0].Context)
	}
	if e.Extract(dom.NewText("   ")) != nil {
		t.Error("expected no fragment for blank text")
	}

	p := dom.NewElement("p", map[string]string{"class": "message"}).Append(dom.NewText("hi again friend"))
	frags = e.Extract(p.Children()[0])
	if len(frags) != 1 || frags[0].Source == nil || frags[0].Source.Path != "p.message" {
		t.Errorf("expected text root located at its parent, got %+v", frags)
	}
}

func TestSweepRestrictsTags(t *testing.T) {
	d := parse(t)
	e := New(dom.DefaultMarker(), model.ContextDiscord)

	got := texts(e.Sweep(d))
	if slices.Contains(got, "plain article text") {
		t.Error("sweep should skip elements outside the candidate tag set")
	}
	if !slices.Contains(got, "are you coming tonight") {
		t.Errorf("sweep missed a message: %q", got)
	}
}

func TestExtractBoundedWork(t *testing.T) {
	d := dom.NewDocument("")
	for i := 0; i < 50; i++ {
		p := dom.NewElement("p", nil)
		_ = d.AppendChild(d.Body(), p)
		_ = d.AppendChild(p, dom.NewText("message number"))
	}
	e := New(dom.DefaultMarker(), model.ContextGeneral)
	e.MaxNodes = 10

	if got := len(e.Extract(d.Body())); got > 10 {
		t.Errorf("expected walk to stop after 10 nodes, got %d fragments", got)
	}
}

func TestIsTextLeaf(t *testing.T) {
	p := dom.NewElement("p", nil)
	d := dom.NewDocument("")
	_ = d.AppendChild(d.Body(), p)
	_ = d.AppendChild(p, dom.NewText("text"))
	_ = d.AppendChild(p, dom.NewElement("img", nil))
	if !IsTextLeaf(p) {
		t.Error("element with only text and empty children is a leaf")
	}
	b := dom.NewElement("b", nil)
	_ = d.AppendChild(p, b)
	_ = d.AppendChild(b, dom.NewText("bold"))
	if IsTextLeaf(p) {
		t.Error("element with a text-bearing child is not a leaf")
	}
}
