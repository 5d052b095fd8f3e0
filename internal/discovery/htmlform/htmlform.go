// Package htmlform discovers form fields in a static HTML document.
//
// It implements [registry.Surface] on top of golang.org/x/net/html so that a
// saved form page can drive discovery without a live host.
package htmlform

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/MrWong99/formscribe/internal/registry"
)

// Surface reads candidates from an HTML document. The document is reloaded on
// every call to Candidates, so a file edited on disk is picked up by the next
// discovery pass.
type Surface struct {
	open func() (io.ReadCloser, error)
}

var _ registry.Surface = (*Surface)(nil)

// Open returns a surface backed by the HTML file at path.
func Open(path string) *Surface {
	return &Surface{open: func() (io.ReadCloser, error) { return os.Open(path) }}
}

// FromBytes returns a surface over an in-memory document.
func FromBytes(doc []byte) *Surface {
	return &Surface{open: func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(doc)), nil
	}}
}

// Candidates implements [registry.Surface].
func (s *Surface) Candidates(ctx context.Context) ([]registry.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rc, err := s.open()
	if err != nil {
		return nil, fmt.Errorf("htmlform: open: %w", err)
	}
	defer rc.Close()
	return Parse(rc)
}

// Parse extracts every input, select and textarea element of the document in
// document order.
func Parse(r io.Reader) ([]registry.Candidate, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("htmlform: parse: %w", err)
	}
	d := &document{byID: make(map[string]*html.Node), labelFor: make(map[string]*html.Node)}
	d.index(doc)

	var cands []registry.Candidate
	for _, n := range d.controls {
		c, ok := d.candidate(n, len(cands))
		if ok {
			cands = append(cands, c)
		}
	}
	return cands, nil
}

type document struct {
	byID     map[string]*html.Node
	labelFor map[string]*html.Node
	controls []*html.Node
}

func (d *document) index(n *html.Node) {
	if n.Type == html.ElementNode {
		if id := attr(n, "id"); id != "" {
			if _, dup := d.byID[id]; !dup {
				d.byID[id] = n
			}
		}
		switch n.DataAtom {
		case atom.Label:
			if f := attr(n, "for"); f != "" {
				if _, dup := d.labelFor[f]; !dup {
					d.labelFor[f] = n
				}
			}
		case atom.Input, atom.Select, atom.Textarea:
			d.controls = append(d.controls, n)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		d.index(c)
	}
}

func (d *document) candidate(n *html.Node, pos int) (registry.Candidate, bool) {
	nativeType := strings.ToLower(attr(n, "type"))
	control := registry.ControlText
	switch n.DataAtom {
	case atom.Textarea:
		control = registry.ControlTextarea
	case atom.Select:
		control = registry.ControlSelect
	case atom.Input:
		switch nativeType {
		case "submit", "button", "reset", "image", "file":
			return registry.Candidate{}, false
		case "checkbox":
			control = registry.ControlCheckbox
		case "radio":
			control = registry.ControlRadio
		}
	}

	id := attr(n, "id")
	ref := id
	if ref == "" {
		ref = n.Data + "-" + strconv.Itoa(pos)
	}
	c := registry.Candidate{
		Ref:         ref,
		Control:     control,
		NativeType:  nativeType,
		Name:        attr(n, "name"),
		ID:          id,
		Placeholder: attr(n, "placeholder"),
		Visible:     visible(n) && nativeType != "hidden",
		Value:       value(n),
		Checked:     hasAttr(n, "checked"),
	}
	c.Signals = d.signals(n, c)
	return c, true
}

func (d *document) signals(n *html.Node, c registry.Candidate) []registry.Signal {
	var out []registry.Signal
	add := func(p registry.Provenance, text string) {
		if strings.TrimSpace(text) != "" {
			out = append(out, registry.Signal{Provenance: p, Text: text})
		}
	}

	if l := closest(n, atom.Label); l != nil && visible(l) {
		add(registry.ProvenanceWrappingLabel, labelText(l))
	}
	if c.ID != "" {
		if l := d.labelFor[c.ID]; l != nil && visible(l) {
			add(registry.ProvenanceLabelFor, labelText(l))
		}
	}
	add(registry.ProvenanceAriaLabel, attr(n, "aria-label"))
	if ids := strings.Fields(attr(n, "aria-labelledby")); len(ids) > 0 {
		var parts []string
		for _, id := range ids {
			if l := d.byID[id]; l != nil && visible(l) {
				parts = append(parts, labelText(l))
			}
		}
		add(registry.ProvenanceAriaLabelledBy, strings.Join(parts, " "))
	}
	sib := prevElement(n)
	if sib == nil && n.Parent != nil {
		sib = prevElement(n.Parent)
	}
	if sib != nil && visible(sib) {
		add(registry.ProvenanceSibling, labelText(sib))
	}
	if fs := closest(n, atom.Fieldset); fs != nil {
		if lg := find(fs, atom.Legend); lg != nil && visible(lg) {
			add(registry.ProvenanceLegend, labelText(lg))
		}
	}
	add(registry.ProvenancePlaceholder, c.Placeholder)
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

// visible reports whether neither n nor any ancestor is hidden by the hidden
// attribute or an inline display/visibility style.
func visible(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		if hasAttr(p, "hidden") {
			return false
		}
		style := strings.ReplaceAll(strings.ToLower(attr(p, "style")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false
		}
	}
	return true
}

func closest(n *html.Node, a atom.Atom) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.DataAtom == a {
			return p
		}
	}
	return nil
}

func find(n *html.Node, a atom.Atom) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return c
		}
		if f := find(c, a); f != nil {
			return f
		}
	}
	return nil
}

func prevElement(n *html.Node) *html.Node {
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}
	return nil
}

// labelText returns the text content of n, leaving out the content of nested
// form controls so a wrapping label does not pick up the field's own value.
func labelText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Input, atom.Select, atom.Textarea, atom.Script, atom.Style:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func value(n *html.Node) string {
	switch n.DataAtom {
	case atom.Textarea:
		var b strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
		}
		return b.String()
	case atom.Select:
		opts := options(n, nil)
		for _, o := range opts {
			if hasAttr(o, "selected") {
				return optionValue(o)
			}
		}
		if len(opts) > 0 {
			return optionValue(opts[0])
		}
		return ""
	}
	return attr(n, "value")
}

func optionValue(o *html.Node) string {
	if hasAttr(o, "value") {
		return attr(o, "value")
	}
	return strings.TrimSpace(labelText(o))
}

func options(n *html.Node, acc []*html.Node) []*html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Option {
			acc = append(acc, c)
			continue
		}
		acc = options(c, acc)
	}
	return acc
}
