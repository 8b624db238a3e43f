// Package geometry computes the page size, content scale and crop box of a trimmed page.
//
// Coordinates follow PDF user space: origin at the bottom-left of the media box, Y up.
// A Rect is a lower-left corner plus an extent, the same shape the document library's
// crop box setter takes.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/local/pagetrim/internal/fault"
)

// ErrDegeneratePage is returned for pages without a positive width and height.
var ErrDegeneratePage = errors.New("page has no area")

// Size is a page width and height in points.
type Size struct {
	Width  float64
	Height float64
}

// Rect is an axis-aligned rectangle given by its lower-left corner and extent.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Corners returns the rectangle as llx, lly, urx, ury.
func (r Rect) Corners() (llx, lly, urx, ury float64) {
	return r.X, r.Y, r.X + r.Width, r.Y + r.Height
}

// Within reports whether r lies inside a box of the given size anchored at the origin.
func (r Rect) Within(s Size) bool {
	const eps = 1e-9
	llx, lly, urx, ury := r.Corners()
	return llx >= -eps && lly >= -eps && urx <= s.Width+eps && ury <= s.Height+eps
}

// TrimConfig holds the fractional margins removed from trimmed pages.
// Bottom is optional; zero disables the bottom strip.
type TrimConfig struct {
	Left   float64 `yaml:"left"`
	Top    float64 `yaml:"top"`
	Bottom float64 `yaml:"bottom"`
}

// Validate rejects fractions that would produce an empty or negative crop.
func (c TrimConfig) Validate() error {
	if err := fraction("left", c.Left, false); err != nil {
		return err
	}
	if err := fraction("top", c.Top, false); err != nil {
		return err
	}
	if err := fraction("bottom", c.Bottom, true); err != nil {
		return err
	}
	if c.Top+c.Bottom >= 1 {
		return &fault.InvalidConfigError{Field: "top+bottom", Value: c.Top + c.Bottom, Reason: "vertical margins leave no visible area"}
	}
	return nil
}

func fraction(field string, v float64, zeroOK bool) error {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return &fault.InvalidConfigError{Field: field, Value: v, Reason: "not a finite number"}
	case v >= 1:
		return &fault.InvalidConfigError{Field: field, Value: v, Reason: "must be below 1"}
	case v < 0, v == 0 && !zeroOK:
		return &fault.InvalidConfigError{Field: field, Value: v, Reason: "must be above 0"}
	}
	return nil
}

// Transform is what a trimmed page receives: a new nominal size, a content scale and a crop box.
type Transform struct {
	Size   Size
	ScaleX float64
	ScaleY float64
	Crop   Rect
}

// Trim enlarges the page so that, once the left and top margins are cropped away,
// the visible area keeps the original size. The right edge is never clipped.
func Trim(page Size, cfg TrimConfig) (Transform, error) {
	if err := cfg.Validate(); err != nil {
		return Transform{}, err
	}
	if !(page.Width > 0) || !(page.Height > 0) {
		return Transform{}, fmt.Errorf("trim %gx%g: %w", page.Width, page.Height, ErrDegeneratePage)
	}

	newW := page.Width / (1 - cfg.Left)
	newH := page.Height / (1 - cfg.Top)

	leftMargin := newW * cfg.Left
	topMargin := newH * cfg.Top
	bottomMargin := newH * cfg.Bottom

	return Transform{
		Size:   Size{Width: newW, Height: newH},
		ScaleX: newW / page.Width,
		ScaleY: newH / page.Height,
		Crop: Rect{
			X:      leftMargin,
			Y:      bottomMargin,
			Width:  newW - leftMargin,
			Height: newH - topMargin - bottomMargin,
		},
	}, nil
}

// BottomStrip is the crop box of a page that only loses a bottom strip of the given
// fraction of its height. The page is neither resized nor rescaled.
func BottomStrip(page Size, bottom float64) (Rect, error) {
	if err := fraction("bottom", bottom, true); err != nil {
		return Rect{}, err
	}
	if !(page.Width > 0) || !(page.Height > 0) {
		return Rect{}, fmt.Errorf("bottom strip %gx%g: %w", page.Width, page.Height, ErrDegeneratePage)
	}
	margin := page.Height * bottom
	return Rect{X: 0, Y: margin, Width: page.Width, Height: page.Height - margin}, nil
}
