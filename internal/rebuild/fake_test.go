package rebuild

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/local/pagetrim/internal/geometry"
)

// fakeMutator decodes "fake:W*H,W*H,..." documents and records what the rebuilder does.
type fakeMutator struct {
	last *fakeTarget
}

type fakeSource struct {
	sizes []geometry.Size
}

type fakePage struct {
	origin int
	size   geometry.Size
	scaleX float64
	scaleY float64
	crop   *geometry.Rect
}

type fakeTarget struct {
	pages []*fakePage
	saved bool
}

func fakeDoc(sizes ...geometry.Size) []byte {
	parts := make([]string, len(sizes))
	for i, s := range sizes {
		parts[i] = fmt.Sprintf("%g*%g", s.Width, s.Height)
	}
	return []byte("fake:" + strings.Join(parts, ","))
}

func uniformDoc(n int, s geometry.Size) []byte {
	sizes := make([]geometry.Size, n)
	for i := range sizes {
		sizes[i] = s
	}
	return fakeDoc(sizes...)
}

func (m *fakeMutator) Load(src []byte) (Source, error) {
	body, ok := strings.CutPrefix(string(src), "fake:")
	if !ok {
		return nil, errors.New("not a fake document")
	}
	s := &fakeSource{}
	if body == "" {
		return s, nil
	}
	for _, p := range strings.Split(body, ",") {
		ws, hs, ok := strings.Cut(p, "*")
		if !ok {
			return nil, fmt.Errorf("bad page size %q", p)
		}
		w, err := strconv.ParseFloat(ws, 64)
		if err != nil {
			return nil, err
		}
		h, err := strconv.ParseFloat(hs, 64)
		if err != nil {
			return nil, err
		}
		s.sizes = append(s.sizes, geometry.Size{Width: w, Height: h})
	}
	return s, nil
}

func (m *fakeMutator) CreateEmpty(base Source) (Target, error) {
	m.last = &fakeTarget{}
	return m.last, nil
}

func (s *fakeSource) PageCount() int { return len(s.sizes) }

func (s *fakeSource) CopyPage(page int) (Page, error) {
	if page < 1 || page > len(s.sizes) {
		return nil, fmt.Errorf("page %d out of range", page)
	}
	return &fakePage{origin: page, size: s.sizes[page-1], scaleX: 1, scaleY: 1}, nil
}

func (p *fakePage) Size() geometry.Size { return p.size }
func (p *fakePage) SetSize(s geometry.Size) { p.size = s }
func (p *fakePage) ScaleContent(sx, sy float64) { p.scaleX *= sx; p.scaleY *= sy }
func (p *fakePage) SetCropBox(r geometry.Rect) { p.crop = &r }

func (t *fakeTarget) AddPage(p Page) error {
	fp, ok := p.(*fakePage)
	if !ok {
		return errors.New("foreign page")
	}
	t.pages = append(t.pages, fp)
	return nil
}

func (t *fakeTarget) Save() ([]byte, error) {
	t.saved = true
	return []byte(fmt.Sprintf("out:%d", len(t.pages))), nil
}

func (t *fakeTarget) origins() []int {
	out := make([]int, len(t.pages))
	for i, p := range t.pages {
		out[i] = p.origin
	}
	return out
}
