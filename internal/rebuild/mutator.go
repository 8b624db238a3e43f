package rebuild

import "github.com/local/pagetrim/internal/geometry"

// Mutator loads, composes and saves PDF byte streams.
type Mutator interface {
	Load(src []byte) (Source, error)
	// CreateEmpty starts an output document. base only contributes document-level data
	// such as the header version; none of its pages are included unless added.
	CreateEmpty(base Source) (Target, error)
}

// Source is a loaded, read-only document.
type Source interface {
	PageCount() int
	// CopyPage returns an independent copy of the 1-based page.
	CopyPage(page int) (Page, error)
}

// Page is a copied page whose geometry may be edited before it is added to a Target.
type Page interface {
	Size() geometry.Size
	SetSize(s geometry.Size)
	ScaleContent(sx, sy float64)
	SetCropBox(r geometry.Rect)
}

// Target is an output document under construction.
type Target interface {
	AddPage(p Page) error
	Save() ([]byte, error)
}
