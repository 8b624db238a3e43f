// Package session holds the documents a user has loaded, their page actions and
// the operations the UI and CLI run against them.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/pagetrim/internal/fault"
	"github.com/local/pagetrim/internal/filetype"
	"github.com/local/pagetrim/internal/metrics"
	"github.com/local/pagetrim/internal/pages"
	"github.com/local/pagetrim/internal/rebuild"
	"github.com/local/pagetrim/internal/render"
)

// Renderer is a decoded document able to draw previews.
type Renderer interface {
	PageCount() int
	RenderPage(page int, opts render.Options) (*render.Image, error)
	Close() error
}

// DecodeFunc decodes raw bytes for previews.
type DecodeFunc func(src []byte) (Renderer, error)

// TypeChecker rejects inputs that are not PDFs.
type TypeChecker interface {
	RequirePDF(name string, data []byte) error
}

// Options wires a Session.
type Options struct {
	Rebuilder *rebuild.Rebuilder

	// Preset assigns initial actions at load time; nil starts every page as None.
	Preset pages.PresetRule
	Suffix string

	// Preview is used when Preview is called with zero options.
	Preview render.Options

	Decode DecodeFunc
	Types  TypeChecker
}

// Document is a loaded input file.
type Document struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	PageCount   int       `json:"page_count"`
	Size        int       `json:"size"`
	LoadedAt    time.Time `json:"loaded_at"`

	data     []byte
	renderer Renderer
}

// File is one input offered to LoadMany.
type File struct {
	Name string
	Data []byte
}

// LoadResult is the outcome of loading one file.
type LoadResult struct {
	Name     string
	Document *Document
	Err      error
}

// Notice is the user-facing failure message, empty on success.
func (r LoadResult) Notice() string { return fault.Notice(r.Name, r.Err) }

// Export is a rebuilt document ready to be written out.
type Export struct {
	DocID   string
	Name    string
	Data    []byte
	Kept    int
	Removed int
	Trimmed int
}

// ExportResult is the outcome of exporting one document.
type ExportResult struct {
	DocID  string
	Source string
	Export *Export
	Err    error
}

// Session is safe for concurrent use; operations are serialized.
type Session struct {
	mu    sync.Mutex
	opts  Options
	docs  []*Document
	byID  map[string]*Document
	store *pages.Store
}

func New(opts Options) (*Session, error) {
	if opts.Rebuilder == nil {
		return nil, errors.New("session: rebuilder is required")
	}
	if opts.Decode == nil {
		opts.Decode = func(src []byte) (Renderer, error) { return render.Decode(src) }
	}
	if opts.Types == nil {
		opts.Types = filetype.New()
	}
	if opts.Suffix == "" {
		opts.Suffix = rebuild.DefaultSuffix
	}
	return &Session{
		opts:  opts,
		byID:  map[string]*Document{},
		store: pages.NewStore(),
	}, nil
}

// Load checks, decodes and registers one file. Its pages get the preset actions.
// Bytes the rebuild cannot open are rejected here instead of at export.
func (s *Session) Load(name string, data []byte) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(name, data)
	metrics.IncLoaded(fault.Kind(err))
	if err != nil {
		log.Warn().Err(err).Str("file", name).Str("kind", fault.Kind(err)).Msg("document rejected")
		return nil, err
	}
	metrics.SetOpenDocuments(len(s.docs))
	log.Info().Str("doc_id", doc.ID).Str("file", name).Int("pages", doc.PageCount).Msg("document loaded")
	return doc.snapshot(), nil
}

func (s *Session) load(name string, data []byte) (*Document, error) {
	if err := s.opts.Types.RequirePDF(name, data); err != nil {
		return nil, err
	}
	r, err := s.opts.Decode(data)
	if err != nil {
		return nil, fault.Unreadable(name, err)
	}
	// Pages are counted by the editor that exports them; the previews must agree.
	n, err := s.opts.Rebuilder.Inspect(data)
	if err != nil {
		_ = r.Close()
		return nil, fault.Unreadable(name, err)
	}
	if n != r.PageCount() {
		_ = r.Close()
		return nil, fault.Unreadable(name, fmt.Errorf("page count mismatch: %d editable, %d rendered", n, r.PageCount()))
	}

	doc := &Document{
		ID:          uuid.NewString(),
		Name:        name,
		DisplayName: rebuild.DisplayName(name),
		PageCount:   n,
		Size:        len(data),
		LoadedAt:    time.Now(),
		data:        data,
		renderer:    r,
	}
	if _, err := s.store.Initialize(doc.ID, doc.PageCount, s.opts.Preset); err != nil {
		_ = r.Close()
		return nil, fault.Unreadable(name, err)
	}
	s.docs = append(s.docs, doc)
	s.byID[doc.ID] = doc
	return doc, nil
}

// LoadMany loads files in order. A failing file never affects the others.
func (s *Session) LoadMany(files []File) []LoadResult {
	out := make([]LoadResult, 0, len(files))
	for _, f := range files {
		doc, err := s.Load(f.Name, f.Data)
		out = append(out, LoadResult{Name: f.Name, Document: doc, Err: err})
	}
	return out
}

// Documents lists loaded documents in load order.
func (s *Session) Documents() []*Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Document, len(s.docs))
	for i, d := range s.docs {
		out[i] = d.snapshot()
	}
	return out
}

func (s *Session) Document(id string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.doc(id)
	if err != nil {
		return nil, err
	}
	return d.snapshot(), nil
}

// Pages returns the page records of a document in page order.
func (s *Session) Pages(id string) ([]pages.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.store.Table(id)
	if err != nil {
		return nil, err
	}
	return t.Records(), nil
}

// Cycle advances the action of one page and returns the new action.
func (s *Session) Cycle(id string, page int) (pages.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.store.Cycle(id, page)
	if err != nil {
		return pages.None, err
	}
	metrics.IncCycle(a.String())
	log.Debug().Str("doc_id", id).Int("page", page).Str("action", a.String()).Msg("page cycled")
	return a, nil
}

// SetAction cycles a page until it carries want.
func (s *Session) SetAction(id string, page int, want pages.Action) (pages.Action, error) {
	if !want.Valid() {
		return pages.None, fmt.Errorf("invalid action %d", want)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.store.Get(id, page)
	if err != nil {
		return pages.None, err
	}
	for a != want {
		if a, err = s.store.Cycle(id, page); err != nil {
			return pages.None, err
		}
		metrics.IncCycle(a.String())
	}
	return a, nil
}

// RemoveDocument forgets a document and its page records.
func (s *Session) RemoveDocument(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.doc(id)
	if err != nil {
		return err
	}
	delete(s.byID, id)
	for i, x := range s.docs {
		if x == d {
			s.docs = append(s.docs[:i], s.docs[i+1:]...)
			break
		}
	}
	s.store.Clear(id)
	if err := d.renderer.Close(); err != nil {
		log.Warn().Err(err).Str("doc_id", id).Msg("closing decoder")
	}
	metrics.SetOpenDocuments(len(s.docs))
	log.Info().Str("doc_id", id).Str("file", d.Name).Msg("document removed")
	return nil
}

// Preview renders one page. Zero options use the session defaults.
func (s *Session) Preview(id string, page int, opts render.Options) (*render.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.doc(id)
	if err != nil {
		return nil, err
	}
	if opts == (render.Options{}) {
		opts = s.opts.Preview
	}
	return d.renderer.RenderPage(page, opts)
}

// Export rebuilds one document from its current page actions.
func (s *Session) Export(id string) (*Export, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.export(id)
}

func (s *Session) export(id string) (*Export, error) {
	d, err := s.doc(id)
	if err != nil {
		return nil, err
	}
	t, err := s.store.Table(id)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := s.opts.Rebuilder.Rebuild(d.data, t)
	metrics.ObserveExport(fault.Kind(err), time.Since(start))
	if err != nil {
		if errors.Is(err, fault.ErrSourceUnreadable) {
			err = fault.Unreadable(d.Name, err)
		}
		log.Error().Err(err).Str("doc_id", id).Str("file", d.Name).Msg("export failed")
		return nil, fmt.Errorf("export: %w", err)
	}

	ex := &Export{
		DocID:   id,
		Name:    rebuild.OutputName(d.Name, s.opts.Suffix),
		Data:    res.Data,
		Kept:    res.Kept(),
		Removed: res.Count(pages.Remove),
		Trimmed: res.Count(pages.Trim),
	}
	for _, a := range []pages.Action{pages.None, pages.Remove, pages.Trim} {
		metrics.AddPagesExported(a.String(), res.Count(a))
	}
	log.Info().
		Str("doc_id", id).
		Str("file", d.Name).
		Str("output", ex.Name).
		Int("kept", ex.Kept).
		Int("removed", ex.Removed).
		Int("trimmed", ex.Trimmed).
		Dur("took", time.Since(start)).
		Msg("document exported")
	return ex, nil
}

// ExportAll exports every document in load order. Each failure is reported on its own result.
func (s *Session) ExportAll() []ExportResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ExportResult, 0, len(s.docs))
	for _, d := range s.docs {
		ex, err := s.export(d.ID)
		out = append(out, ExportResult{DocID: d.ID, Source: d.Name, Export: ex, Err: err})
	}
	return out
}

// Close releases every decoder.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.docs {
		_ = d.renderer.Close()
	}
	s.docs = nil
	s.byID = map[string]*Document{}
	s.store = pages.NewStore()
}

func (s *Session) doc(id string) (*Document, error) {
	d, ok := s.byID[id]
	if !ok {
		return nil, &fault.NotFoundError{Resource: "document", ID: id}
	}
	return d, nil
}

// snapshot copies the exported fields only.
func (d *Document) snapshot() *Document {
	return &Document{
		ID:          d.ID,
		Name:        d.Name,
		DisplayName: d.DisplayName,
		PageCount:   d.PageCount,
		Size:        d.Size,
		LoadedAt:    d.LoadedAt,
	}
}
