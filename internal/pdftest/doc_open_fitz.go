package pdftest

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	fitz "github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PageProbe captures the text found on a single page.
type PageProbe struct {
	PageIndex int    `json:"page_index"`
	Text      string `json:"text"`
	CharCount int    `json:"char_count"`
}

// Diagnostics is what Probe found in a document.
type Diagnostics struct {
	TotalPages int         `json:"total_pages"`
	Probes     []PageProbe `json:"probes"`
}

// Texts returns the trimmed text of every page in order.
func (d *Diagnostics) Texts() []string {
	out := make([]string, len(d.Probes))
	for i, p := range d.Probes {
		out[i] = p.Text
	}
	return out
}

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Probe opens data with go-fitz and extracts the text of every page.
func Probe(data []byte) (*Diagnostics, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	diag := &Diagnostics{TotalPages: doc.NumPage()}
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		text = whitespaceRegex.ReplaceAllString(text, " ")
		text = strings.TrimSpace(text)
		diag.Probes = append(diag.Probes, PageProbe{PageIndex: i, Text: text, CharCount: len([]rune(text))})
	}
	return diag, nil
}

// Dims returns the media box size of every page as pdfcpu reports it.
func Dims(data []byte) ([][2]float64, error) {
	if len(data) == 0 {
		return nil, errors.New("empty document")
	}
	dims, err := api.PageDims(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return nil, err
	}
	out := make([][2]float64, len(dims))
	for i, d := range dims {
		out[i] = [2]float64{d.Width, d.Height}
	}
	return out, nil
}
