package session

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pagetrim/internal/fault"
	"github.com/local/pagetrim/internal/geometry"
	"github.com/local/pagetrim/internal/pages"
	"github.com/local/pagetrim/internal/pdfdoc"
	"github.com/local/pagetrim/internal/pdftest"
	"github.com/local/pagetrim/internal/rebuild"
	"github.com/local/pagetrim/internal/render"
)

// Fake documents are "%PDF n" with n pages. Extra words change the editor's view:
// "corrupt" decodes for previews but cannot be opened for editing, "edit=m" makes the
// editor count m pages, "unsaveable" opens but fails when the output is written.

type fakeTypes struct{}

func (fakeTypes) RequirePDF(name string, data []byte) error {
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return &fault.InvalidInputTypeError{Name: name, MIME: "text/plain"}
	}
	return nil
}

type fakeRenderer struct {
	pages  int
	closed bool
}

func (r *fakeRenderer) PageCount() int { return r.pages }

func (r *fakeRenderer) RenderPage(page int, opts render.Options) (*render.Image, error) {
	if page < 1 || page > r.pages {
		return nil, &fault.NotFoundError{Resource: "page", ID: strconv.Itoa(page)}
	}
	return &render.Image{JPEG: []byte(fmt.Sprintf("jpeg %d@%d", page, opts.DPI)), Width: 1, Height: 1}, nil
}

func (r *fakeRenderer) Close() error { r.closed = true; return nil }

func fakePageCount(data []byte) (int, error) {
	f := strings.Fields(string(data))
	if len(f) < 2 {
		return 0, errors.New("no page count")
	}
	return strconv.Atoi(f[1])
}

type fakeMutator struct{}

type fakeSource struct {
	n    int
	fail bool
}

type fakePage struct{ n int }

type fakeTarget struct {
	pages []int
	fail  bool
}

func (fakeMutator) Load(src []byte) (rebuild.Source, error) {
	if bytes.Contains(src, []byte("corrupt")) {
		return nil, errors.New("broken xref")
	}
	n, err := fakePageCount(src)
	if err != nil {
		return nil, err
	}
	fail := false
	for _, f := range strings.Fields(string(src)) {
		if v, ok := strings.CutPrefix(f, "edit="); ok {
			if n, err = strconv.Atoi(v); err != nil {
				return nil, err
			}
		}
		fail = fail || f == "unsaveable"
	}
	return fakeSource{n: n, fail: fail}, nil
}

func (fakeMutator) CreateEmpty(base rebuild.Source) (rebuild.Target, error) {
	return &fakeTarget{fail: base.(fakeSource).fail}, nil
}

func (s fakeSource) PageCount() int { return s.n }

func (s fakeSource) CopyPage(p int) (rebuild.Page, error) { return &fakePage{n: p}, nil }

func (p *fakePage) Size() geometry.Size { return geometry.Size{Width: 100, Height: 100} }
func (p *fakePage) SetSize(geometry.Size) {}
func (p *fakePage) ScaleContent(float64, float64) {}
func (p *fakePage) SetCropBox(geometry.Rect) {}

func (t *fakeTarget) AddPage(p rebuild.Page) error {
	t.pages = append(t.pages, p.(*fakePage).n)
	return nil
}

func (t *fakeTarget) Save() ([]byte, error) {
	if t.fail {
		return nil, errors.New("disk full")
	}
	return []byte(fmt.Sprint(t.pages)), nil
}

var renderers []*fakeRenderer

func newFakeSession(t *testing.T, preset pages.PresetRule) *Session {
	t.Helper()
	r, err := rebuild.New(fakeMutator{}, rebuild.Options{Trim: geometry.TrimConfig{Left: 0.126, Top: 0.125}})
	require.NoError(t, err)
	s, err := New(Options{
		Rebuilder: r,
		Preset:    preset,
		Preview:   render.Options{DPI: 40},
		Types:     fakeTypes{},
		Decode: func(src []byte) (Renderer, error) {
			n, err := fakePageCount(src)
			if err != nil {
				return nil, err
			}
			fr := &fakeRenderer{pages: n}
			renderers = append(renderers, fr)
			return fr, nil
		},
	})
	require.NoError(t, err)
	return s
}

func TestLoad(t *testing.T) {
	s := newFakeSession(t, pages.WuolahPreset)

	doc, err := s.Load("dir/Tema 1.pdf", []byte("%PDF 9"))
	require.NoError(t, err)
	assert.Equal(t, 9, doc.PageCount)
	assert.Equal(t, "Tema 1", doc.DisplayName)
	assert.NotEmpty(t, doc.ID)

	recs, err := s.Pages(doc.ID)
	require.NoError(t, err)
	require.Len(t, recs, 9)
	got := make([]pages.Action, len(recs))
	for i, r := range recs {
		assert.Equal(t, i+1, r.Page)
		got[i] = r.Action
	}
	assert.Equal(t, []pages.Action{
		pages.Remove, pages.Trim, pages.None, pages.Remove, pages.None,
		pages.Trim, pages.None, pages.None, pages.Trim,
	}, got)
}

func TestLoadMany_IsolatesFailures(t *testing.T) {
	s := newFakeSession(t, nil)

	res := s.LoadMany([]File{
		{Name: "a.pdf", Data: []byte("%PDF 2")},
		{Name: "notes.txt", Data: []byte("hello")},
		{Name: "b.pdf", Data: []byte("%PDF nope")},
		{Name: "c.pdf", Data: []byte("%PDF 1")},
	})
	require.Len(t, res, 4)
	assert.NoError(t, res[0].Err)
	assert.ErrorIs(t, res[1].Err, fault.ErrInvalidInputType)
	assert.Equal(t, "notes.txt is not a PDF file.", res[1].Notice())
	assert.ErrorIs(t, res[2].Err, fault.ErrSourceUnreadable)
	assert.Contains(t, res[2].Notice(), "b.pdf")
	assert.NoError(t, res[3].Err)
	assert.Empty(t, res[3].Notice())

	docs := s.Documents()
	require.Len(t, docs, 2)
	assert.Equal(t, "a.pdf", docs[0].Name)
	assert.Equal(t, "c.pdf", docs[1].Name)
}

func TestLoad_RejectsDocumentsThatCannotBeExported(t *testing.T) {
	renderers = nil
	s := newFakeSession(t, nil)

	_, err := s.Load("broken.pdf", []byte("%PDF 3 corrupt"))
	assert.ErrorIs(t, err, fault.ErrSourceUnreadable)
	assert.ErrorContains(t, err, "broken.pdf")

	_, err = s.Load("odd.pdf", []byte("%PDF 3 edit=4"))
	assert.ErrorIs(t, err, fault.ErrSourceUnreadable)
	assert.ErrorContains(t, err, "page count mismatch")

	assert.Empty(t, s.Documents())
	require.Len(t, renderers, 2)
	assert.True(t, renderers[0].closed)
	assert.True(t, renderers[1].closed)
}

func TestCycle_OnlyTouchesItsPage(t *testing.T) {
	s := newFakeSession(t, nil)
	x, err := s.Load("x.pdf", []byte("%PDF 4"))
	require.NoError(t, err)
	y, err := s.Load("y.pdf", []byte("%PDF 4"))
	require.NoError(t, err)

	a, err := s.Cycle(x.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, pages.Remove, a)

	xr, _ := s.Pages(x.ID)
	yr, _ := s.Pages(y.ID)
	for i := 0; i < 4; i++ {
		assert.Equal(t, pages.None, yr[i].Action)
		if i == 2 {
			assert.Equal(t, pages.Remove, xr[i].Action)
		} else {
			assert.Equal(t, pages.None, xr[i].Action)
		}
	}

	for i := 0; i < 2; i++ {
		_, err = s.Cycle(x.ID, 3)
		require.NoError(t, err)
	}
	xr, _ = s.Pages(x.ID)
	assert.Equal(t, pages.None, xr[2].Action)

	_, err = s.Cycle(x.ID, 5)
	assert.ErrorIs(t, err, fault.ErrNotFound)
	_, err = s.Cycle("missing", 1)
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

func TestSetAction(t *testing.T) {
	s := newFakeSession(t, nil)
	d, err := s.Load("x.pdf", []byte("%PDF 2"))
	require.NoError(t, err)

	a, err := s.SetAction(d.ID, 2, pages.Trim)
	require.NoError(t, err)
	assert.Equal(t, pages.Trim, a)
	a, err = s.SetAction(d.ID, 2, pages.Remove)
	require.NoError(t, err)
	assert.Equal(t, pages.Remove, a)

	_, err = s.SetAction(d.ID, 2, pages.Action(9))
	assert.Error(t, err)
}

func TestExport(t *testing.T) {
	s := newFakeSession(t, nil)
	d, err := s.Load("apuntes.pdf", []byte("%PDF 3"))
	require.NoError(t, err)
	_, err = s.SetAction(d.ID, 2, pages.Remove)
	require.NoError(t, err)
	_, err = s.SetAction(d.ID, 3, pages.Trim)
	require.NoError(t, err)

	ex, err := s.Export(d.ID)
	require.NoError(t, err)
	assert.Equal(t, "apuntes_unwuolahfied.pdf", ex.Name)
	assert.Equal(t, "[1 3]", string(ex.Data))
	assert.Equal(t, 2, ex.Kept)
	assert.Equal(t, 1, ex.Removed)
	assert.Equal(t, 1, ex.Trimmed)

	_, err = s.Export("missing")
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

func TestExportAll_IsolatesFailures(t *testing.T) {
	s := newFakeSession(t, nil)
	for _, f := range []File{
		{Name: "a.pdf", Data: []byte("%PDF 2")},
		{Name: "b.pdf", Data: []byte("%PDF 2 unsaveable")},
		{Name: "c.pdf", Data: []byte("%PDF 3")},
	} {
		_, err := s.Load(f.Name, f.Data)
		require.NoError(t, err)
	}

	res := s.ExportAll()
	require.Len(t, res, 3)
	assert.NoError(t, res[0].Err)
	assert.Equal(t, "a_unwuolahfied.pdf", res[0].Export.Name)
	assert.ErrorContains(t, res[1].Err, "disk full")
	assert.Nil(t, res[1].Export)
	assert.Equal(t, "b.pdf", res[1].Source)
	assert.NoError(t, res[2].Err)
	assert.Equal(t, "[1 2 3]", string(res[2].Export.Data))
}

func TestRemoveDocument(t *testing.T) {
	renderers = nil
	s := newFakeSession(t, nil)
	a, _ := s.Load("a.pdf", []byte("%PDF 1"))
	b, _ := s.Load("b.pdf", []byte("%PDF 1"))

	require.NoError(t, s.RemoveDocument(a.ID))
	assert.True(t, renderers[0].closed)
	assert.False(t, renderers[1].closed)

	_, err := s.Pages(a.ID)
	assert.ErrorIs(t, err, fault.ErrNotFound)
	assert.ErrorIs(t, s.RemoveDocument(a.ID), fault.ErrNotFound)

	docs := s.Documents()
	require.Len(t, docs, 1)
	assert.Equal(t, b.ID, docs[0].ID)
}

func TestPreview(t *testing.T) {
	s := newFakeSession(t, nil)
	d, _ := s.Load("a.pdf", []byte("%PDF 2"))

	img, err := s.Preview(d.ID, 2, render.Options{})
	require.NoError(t, err)
	assert.Equal(t, "jpeg 2@40", string(img.JPEG))

	img, err = s.Preview(d.ID, 1, render.Options{DPI: 90})
	require.NoError(t, err)
	assert.Equal(t, "jpeg 1@90", string(img.JPEG))

	_, err = s.Preview(d.ID, 3, render.Options{})
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

func TestSession_RealDocuments(t *testing.T) {
	r, err := rebuild.New(pdfdoc.New(), rebuild.Options{Trim: geometry.TrimConfig{Left: 0.126, Top: 0.125}})
	require.NoError(t, err)
	s, err := New(Options{Rebuilder: r, Preset: pages.WuolahPreset})
	require.NoError(t, err)
	defer s.Close()

	d, err := s.Load("nine.pdf", pdftest.A4(9))
	require.NoError(t, err)
	require.Equal(t, 9, d.PageCount)

	ex, err := s.Export(d.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, ex.Kept)
	assert.Equal(t, 3, ex.Trimmed)

	diag, err := pdftest.Probe(ex.Data)
	require.NoError(t, err)
	assert.Equal(t, []string{"page 2", "page 3", "page 5", "page 6", "page 7", "page 8", "page 9"}, diag.Texts())

	_, err = s.Load("fake.pdf", []byte("plain words"))
	assert.ErrorIs(t, err, fault.ErrInvalidInputType)
}

func TestSession_RejectsDamagedXref(t *testing.T) {
	r, err := rebuild.New(pdfdoc.New(), rebuild.Options{Trim: geometry.TrimConfig{Left: 0.126, Top: 0.125}})
	require.NoError(t, err)
	s, err := New(Options{Rebuilder: r, Preset: pages.WuolahPreset})
	require.NoError(t, err)
	defer s.Close()

	whole := pdftest.A4(3)
	cut := bytes.LastIndex(whole, []byte("\nxref\n")) + 1
	require.Positive(t, cut)
	badStart := bytes.Replace(whole, []byte(fmt.Sprintf("startxref\n%d\n", cut)), []byte("startxref\n17\n"), 1)
	require.NotEqual(t, whole, badStart)

	for name, data := range map[string][]byte{
		"no-xref.pdf":   whole[:cut],
		"bad-start.pdf": badStart,
	} {
		_, err := s.Load(name, data)
		assert.ErrorIs(t, err, fault.ErrSourceUnreadable, name)
	}
	assert.Empty(t, s.Documents())
}
