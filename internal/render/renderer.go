// Package render decodes documents with go-fitz and renders page previews.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"strconv"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"

	"github.com/local/pagetrim/internal/fault"
)

// Preview defaults.
const (
	DefaultDPI     = 72
	DefaultQuality = 80
	maxDPI         = 600
)

// Options controls a page render.
type Options struct {
	DPI     int
	Quality int
	Gray    bool
}

func (o Options) normalized() Options {
	if o.DPI <= 0 {
		o.DPI = DefaultDPI
	}
	if o.DPI > maxDPI {
		o.DPI = maxDPI
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = DefaultQuality
	}
	return o
}

// Image is an encoded page preview.
type Image struct {
	JPEG   []byte
	Width  int
	Height int
}

// Handle is a decoded document. It is safe for concurrent use.
type Handle struct {
	mu    sync.Mutex
	doc   *fitz.Document
	pages int
}

// Decode opens src with go-fitz. The handle keeps its own reference to the bytes.
func Decode(src []byte) (*Handle, error) {
	if len(src) == 0 {
		return nil, fault.Unreadable("", fmt.Errorf("empty input"))
	}
	doc, err := fitz.NewFromMemory(src)
	if err != nil {
		return nil, fault.Unreadable("", err)
	}
	return &Handle{doc: doc, pages: doc.NumPage()}, nil
}

// PageCount is the number of pages reported by the decoder.
func (h *Handle) PageCount() int { return h.pages }

// Close releases the decoder. Closing twice is a no-op.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.doc == nil {
		return nil
	}
	err := h.doc.Close()
	h.doc = nil
	return err
}

// RenderPage renders the 1-based page as JPEG.
func (h *Handle) RenderPage(page int, opts Options) (*Image, error) {
	opts = opts.normalized()
	if page < 1 || page > h.pages {
		return nil, &fault.NotFoundError{Resource: "page", ID: strconv.Itoa(page)}
	}

	h.mu.Lock()
	if h.doc == nil {
		h.mu.Unlock()
		return nil, fmt.Errorf("render page %d: document closed", page)
	}
	// go-fitz uses 0-based indexing
	img, err := h.doc.ImageDPI(page-1, float64(opts.DPI))
	h.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", page, err)
	}

	bounds := img.Bounds()
	var final image.Image = img
	if opts.Gray {
		gray := image.NewGray(bounds)
		draw.Draw(gray, bounds, img, image.Point{}, draw.Src)
		final = gray
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, final, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}

	log.Debug().
		Int("page", page).
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Int("dpi", opts.DPI).
		Int("jpeg_size", buf.Len()).
		Msg("rendered page preview")

	return &Image{JPEG: buf.Bytes(), Width: bounds.Dx(), Height: bounds.Dy()}, nil
}
