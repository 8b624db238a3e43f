// Package pdfdoc edits PDF page trees with pdfcpu.
//
// A Document is parsed once to answer page counts and sizes. Pages copied from it
// only record the edits asked for; a Target re-reads the original bytes into a
// private context and applies them there, so copies never alias the source.
package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog/log"

	"github.com/local/pagetrim/internal/fault"
	"github.com/local/pagetrim/internal/geometry"
	"github.com/local/pagetrim/internal/rebuild"
)

// Page boxes dropped when a page is resized.
var staleBoxes = []string{"CropBox", "BleedBox", "TrimBox", "ArtBox"}

// Attributes a page may inherit from its ancestors.
var inheritable = []string{"MediaBox", "CropBox", "Resources", "Rotate"}

// Mutator is the pdfcpu backed rebuild.Mutator.
type Mutator struct {
	conf *model.Configuration
}

func New() *Mutator {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Mutator{conf: conf}
}

// Load parses and validates src.
func (m *Mutator) Load(src []byte) (rebuild.Source, error) {
	return m.Open(src)
}

// Open is Load with the concrete return type.
func (m *Mutator) Open(src []byte) (*Document, error) {
	ctx, err := m.read(src)
	if err != nil {
		return nil, err
	}
	doc := &Document{m: m, raw: src, boxes: make([]rect, ctx.PageCount)}
	for p := 1; p <= ctx.PageCount; p++ {
		d, _, _, err := ctx.PageDict(p, false)
		if err != nil {
			return nil, fault.Unreadable("", fmt.Errorf("page %d: %w", p, err))
		}
		if d == nil {
			return nil, fault.Unreadable("", fmt.Errorf("page %d: missing page dict", p))
		}
		media, err := pageBox(ctx, d, "MediaBox")
		if err != nil {
			return nil, fault.Unreadable("", fmt.Errorf("page %d: %w", p, err))
		}
		doc.boxes[p-1] = media
	}
	return doc, nil
}

func (m *Mutator) read(src []byte) (*model.Context, error) {
	if len(src) == 0 {
		return nil, fault.Unreadable("", errors.New("empty input"))
	}
	ctx, err := api.ReadContext(bytes.NewReader(src), m.conf)
	if err != nil {
		return nil, fault.Unreadable("", err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, fault.Unreadable("", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fault.Unreadable("", err)
	}
	return ctx, nil
}

// CreateEmpty starts an output document that shares base's document-level objects.
func (m *Mutator) CreateEmpty(base rebuild.Source) (rebuild.Target, error) {
	doc, ok := base.(*Document)
	if !ok || doc == nil {
		return nil, fmt.Errorf("pdfdoc: base is %T, not a pdfdoc document", base)
	}
	ctx, err := m.read(doc.raw)
	if err != nil {
		return nil, err
	}
	return &Target{doc: doc, ctx: ctx, seen: map[int]bool{}}, nil
}

// rect is a box in user space, normalized so ll is below and left of ur.
type rect struct {
	llx, lly, urx, ury float64
}

func (r rect) size() geometry.Size {
	return geometry.Size{Width: r.urx - r.llx, Height: r.ury - r.lly}
}

// Document is a loaded, read-only source document.
type Document struct {
	m     *Mutator
	raw   []byte
	boxes []rect
}

func (d *Document) PageCount() int { return len(d.boxes) }

// PageSize is the media box size of a 1-based page.
func (d *Document) PageSize(page int) (geometry.Size, error) {
	if page < 1 || page > len(d.boxes) {
		return geometry.Size{}, &fault.NotFoundError{Resource: "page", ID: strconv.Itoa(page)}
	}
	return d.boxes[page-1].size(), nil
}

// PageSizes lists media box sizes in page order.
func (d *Document) PageSizes() []geometry.Size {
	out := make([]geometry.Size, len(d.boxes))
	for i, b := range d.boxes {
		out[i] = b.size()
	}
	return out
}

func (d *Document) CopyPage(page int) (rebuild.Page, error) {
	if page < 1 || page > len(d.boxes) {
		return nil, &fault.NotFoundError{Resource: "page", ID: strconv.Itoa(page)}
	}
	b := d.boxes[page-1]
	return &Page{doc: d, num: page, media: b, size: b.size(), scaleX: 1, scaleY: 1}, nil
}

// Page is a recorded copy of a source page.
type Page struct {
	doc     *Document
	num     int
	media   rect
	size    geometry.Size
	resized bool
	scaleX  float64
	scaleY  float64
	crop    *geometry.Rect
}

// Number is the 1-based page number in the source document.
func (p *Page) Number() int { return p.num }

func (p *Page) Size() geometry.Size { return p.size }

func (p *Page) SetSize(s geometry.Size) {
	p.size = s
	p.resized = true
}

func (p *Page) ScaleContent(sx, sy float64) {
	p.scaleX *= sx
	p.scaleY *= sy
}

// SetCropBox takes r relative to the lower-left corner of the media box.
func (p *Page) SetCropBox(r geometry.Rect) {
	p.crop = &r
}

// Target collects pages into a flat page tree.
type Target struct {
	doc   *Document
	ctx   *model.Context
	added []types.IndirectRef
	seen  map[int]bool
	saved bool
}

func (t *Target) AddPage(rp rebuild.Page) error {
	p, ok := rp.(*Page)
	if !ok {
		return fmt.Errorf("pdfdoc: page is %T, not a pdfdoc page", rp)
	}
	if p.doc != t.doc {
		return errors.New("pdfdoc: page belongs to another document")
	}
	if t.saved {
		return errors.New("pdfdoc: target already saved")
	}
	if t.seen[p.num] {
		return fmt.Errorf("pdfdoc: page %d added twice", p.num)
	}

	d, ref, _, err := t.ctx.PageDict(p.num, false)
	if err != nil {
		return fmt.Errorf("page %d: %w", p.num, err)
	}
	if d == nil || ref == nil {
		return fmt.Errorf("page %d: not an indirect page object", p.num)
	}
	if err := t.materialize(d); err != nil {
		return fmt.Errorf("page %d: %w", p.num, err)
	}
	if err := t.apply(d, p); err != nil {
		return fmt.Errorf("page %d: %w", p.num, err)
	}

	t.seen[p.num] = true
	t.added = append(t.added, *ref)
	return nil
}

// materialize copies inherited attributes onto the page so it survives a flattened tree.
func (t *Target) materialize(d types.Dict) error {
	for _, key := range inheritable {
		if _, ok := d.Find(key); ok {
			continue
		}
		v, err := inherited(t.ctx, d, key)
		if err != nil {
			return err
		}
		if v != nil {
			d.Update(key, v)
		}
	}
	return nil
}

func (t *Target) apply(d types.Dict, p *Page) error {
	media := p.media
	if p.resized {
		media = rect{llx: p.media.llx, lly: p.media.lly, urx: p.media.llx + p.size.Width, ury: p.media.lly + p.size.Height}
		d.Update("MediaBox", types.NewRectangle(media.llx, media.lly, media.urx, media.ury).Array())
		for _, k := range staleBoxes {
			d.Delete(k)
		}
	}
	if p.scaleX != 1 || p.scaleY != 1 {
		if err := t.wrapContents(d, p.scaleX, p.scaleY); err != nil {
			return err
		}
	}
	if p.crop != nil {
		llx, lly, urx, ury := p.crop.Corners()
		d.Update("CropBox", types.NewRectangle(media.llx+llx, media.lly+lly, media.llx+urx, media.lly+ury).Array())
	}
	return nil
}

// wrapContents scales everything the page draws about the user space origin.
func (t *Target) wrapContents(d types.Dict, sx, sy float64) error {
	pre, err := t.stream("q " + num(sx) + " 0 0 " + num(sy) + " 0 0 cm\n")
	if err != nil {
		return err
	}
	post, err := t.stream("\nQ\n")
	if err != nil {
		return err
	}

	arr := types.Array{*pre}
	if obj, ok := d.Find("Contents"); ok && obj != nil {
		switch c := obj.(type) {
		case types.IndirectRef:
			o, err := t.ctx.Dereference(c)
			if err != nil {
				return err
			}
			if a, ok := o.(types.Array); ok {
				arr = append(arr, a...)
			} else {
				arr = append(arr, c)
			}
		case types.Array:
			arr = append(arr, c...)
		default:
			return fmt.Errorf("unexpected contents %T", obj)
		}
	}
	arr = append(arr, *post)
	d.Update("Contents", arr)
	return nil
}

func (t *Target) stream(content string) (*types.IndirectRef, error) {
	sd, err := t.ctx.NewStreamDictForBuf([]byte(content))
	if err != nil {
		return nil, err
	}
	if err := sd.Encode(); err != nil {
		return nil, err
	}
	return t.ctx.IndRefForNewObject(*sd)
}

// Save rewrites the root page node to list exactly the added pages and serializes the document.
func (t *Target) Save() ([]byte, error) {
	if t.saved {
		return nil, errors.New("pdfdoc: target already saved")
	}
	rootRef := t.ctx.RootDict.IndirectRefEntry("Pages")
	if rootRef == nil {
		return nil, errors.New("pdfdoc: document has no page tree")
	}
	root, err := t.ctx.DereferenceDict(*rootRef)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, errors.New("pdfdoc: page tree root is empty")
	}

	kids := make(types.Array, 0, len(t.added))
	for _, ref := range t.added {
		d, err := t.ctx.DereferenceDict(ref)
		if err != nil {
			return nil, err
		}
		d.Update("Parent", *rootRef)
		kids = append(kids, ref)
	}
	root.Update("Kids", kids)
	root.Update("Count", types.Integer(len(kids)))
	t.ctx.PageCount = len(kids)

	var buf bytes.Buffer
	if err := api.WriteContext(t.ctx, &buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	t.saved = true
	log.Debug().Int("pages", len(kids)).Int("bytes", buf.Len()).Msg("wrote rebuilt document")
	return buf.Bytes(), nil
}

// inherited walks the Parent chain of d looking for key.
func inherited(ctx *model.Context, d types.Dict, key string) (types.Object, error) {
	cur := d
	for depth := 0; depth < 64; depth++ {
		pref := cur.IndirectRefEntry("Parent")
		if pref == nil {
			return nil, nil
		}
		parent, err := ctx.DereferenceDict(*pref)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, nil
		}
		if v, ok := parent.Find(key); ok && v != nil {
			return v, nil
		}
		cur = parent
	}
	return nil, errors.New("page tree too deep")
}

// pageBox resolves a page's own or inherited box.
func pageBox(ctx *model.Context, d types.Dict, key string) (rect, error) {
	obj, ok := d.Find(key)
	if !ok || obj == nil {
		v, err := inherited(ctx, d, key)
		if err != nil {
			return rect{}, err
		}
		if v == nil {
			return rect{}, fmt.Errorf("no %s", key)
		}
		obj = v
	}
	return toRect(ctx, obj)
}

func toRect(ctx *model.Context, obj types.Object) (rect, error) {
	arr, err := ctx.DereferenceArray(obj)
	if err != nil {
		return rect{}, err
	}
	if len(arr) != 4 {
		return rect{}, fmt.Errorf("rectangle has %d entries", len(arr))
	}
	var v [4]float64
	for i, o := range arr {
		f, err := number(ctx, o)
		if err != nil {
			return rect{}, err
		}
		v[i] = f
	}
	return rect{
		llx: math.Min(v[0], v[2]),
		lly: math.Min(v[1], v[3]),
		urx: math.Max(v[0], v[2]),
		ury: math.Max(v[1], v[3]),
	}, nil
}

func number(ctx *model.Context, o types.Object) (float64, error) {
	o, err := ctx.Dereference(o)
	if err != nil {
		return 0, err
	}
	switch v := o.(type) {
	case types.Integer:
		return float64(v), nil
	case types.Float:
		return float64(v), nil
	}
	return 0, fmt.Errorf("%v is not a number", o)
}

func num(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
