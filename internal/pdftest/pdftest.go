// Package pdftest builds small but complete PDF documents for tests and probes
// the documents a rebuild produces.
package pdftest

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// A4 in points.
const (
	A4Width  = 595.28
	A4Height = 841.89
)

// FixturePage describes one fixture page. Text is drawn at (200, 200).
type FixturePage struct {
	Width  float64
	Height float64
	Text   string
}

// Fixture describes a test document.
type Fixture struct {
	Pages []FixturePage

	// InheritMediaBox puts the first page's media box on the page tree root
	// instead of on each page. All pages then share that size.
	InheritMediaBox bool

	// Nested splits the page tree into one intermediate node per two pages.
	Nested bool
}

// Uniform returns n pages of the given size labelled "page 1" .. "page n".
func Uniform(n int, w, h float64) Fixture {
	s := Fixture{Pages: make([]FixturePage, n)}
	for i := range s.Pages {
		s.Pages[i] = FixturePage{Width: w, Height: h, Text: fmt.Sprintf("page %d", i+1)}
	}
	return s
}

// A4 returns an n page A4 document labelled "page 1" .. "page n".
func A4(n int) []byte { return Uniform(n, A4Width, A4Height).Bytes() }

// Bytes renders the document with a valid cross-reference table.
func (s Fixture) Bytes() []byte {
	w := &writer{}
	w.buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	// 1 catalog, 2 root pages, 3 font, then intermediate nodes, then page+content pairs.
	const catalog, root, font = 1, 2, 3
	next := 4

	var nodes []int
	parentOf := make([]int, len(s.Pages))
	if s.Nested {
		for i := 0; i < len(s.Pages); i += 2 {
			nodes = append(nodes, next)
			next++
		}
		for i := range s.Pages {
			parentOf[i] = nodes[i/2]
		}
	} else {
		for i := range s.Pages {
			parentOf[i] = root
		}
	}
	pageObj := make([]int, len(s.Pages))
	for i := range s.Pages {
		pageObj[i] = next
		next += 2
	}

	w.object(catalog, fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", root))

	rootKids := pageObj
	if s.Nested {
		rootKids = nodes
	}
	inherited := ""
	if s.InheritMediaBox && len(s.Pages) > 0 {
		inherited = " /MediaBox " + box(s.Pages[0].Width, s.Pages[0].Height)
	}
	w.object(root, fmt.Sprintf("<< /Type /Pages /Kids %s /Count %d%s >>", refs(rootKids), len(s.Pages), inherited))
	w.object(font, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	for _, obj := range nodes {
		var kids []int
		for i := range s.Pages {
			if parentOf[i] == obj {
				kids = append(kids, pageObj[i])
			}
		}
		w.object(obj, fmt.Sprintf("<< /Type /Pages /Parent %d 0 R /Kids %s /Count %d >>", root, refs(kids), len(kids)))
	}

	for i, p := range s.Pages {
		media := ""
		if !s.InheritMediaBox {
			media = " /MediaBox " + box(p.Width, p.Height)
		}
		w.object(pageObj[i], fmt.Sprintf(
			"<< /Type /Page /Parent %d 0 R%s /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>",
			parentOf[i], media, font, pageObj[i]+1))

		content := ""
		if p.Text != "" {
			content = fmt.Sprintf("BT /F1 18 Tf 200 200 Td (%s) Tj ET", escape(p.Text))
		}
		w.object(pageObj[i]+1, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	return w.finish(catalog, next)
}

type writer struct {
	buf     bytes.Buffer
	offsets map[int]int
}

func (w *writer) object(num int, body string) {
	if w.offsets == nil {
		w.offsets = map[int]int{}
	}
	w.offsets[num] = w.buf.Len()
	fmt.Fprintf(&w.buf, "%d 0 obj\n%s\nendobj\n", num, body)
}

func (w *writer) finish(catalog, size int) []byte {
	xref := w.buf.Len()
	fmt.Fprintf(&w.buf, "xref\n0 %d\n0000000000 65535 f \n", size)
	for i := 1; i < size; i++ {
		fmt.Fprintf(&w.buf, "%010d 00000 n \n", w.offsets[i])
	}
	fmt.Fprintf(&w.buf, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", size, catalog, xref)
	return w.buf.Bytes()
}

func box(w, h float64) string {
	return "[0 0 " + num(w) + " " + num(h) + "]"
}

func num(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func refs(objs []int) string {
	parts := make([]string, len(objs))
	for i, o := range objs {
		parts[i] = fmt.Sprintf("%d 0 R", o)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
