// Package rebuild turns a document and its per-page actions into a new PDF.
package rebuild

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/pagetrim/internal/fault"
	"github.com/local/pagetrim/internal/geometry"
	"github.com/local/pagetrim/internal/pages"
)

// DefaultSuffix is appended to the display name of every exported file.
const DefaultSuffix = "unwuolahfied"

// Actions looks up the action of a 1-based page.
type Actions interface {
	Get(page int) (pages.Action, error)
}

// Options are the per-process settings of the rebuild.
type Options struct {
	Trim geometry.TrimConfig

	// CropBottomOnKeep also crops Trim.Bottom off pages left as None.
	CropBottomOnKeep bool
}

// Disposition says whether a source page reaches the output.
type Disposition int

const (
	Skip Disposition = iota
	Keep
)

func (d Disposition) String() string {
	if d == Keep {
		return "keep"
	}
	return "skip"
}

// Step is one entry of a rebuild plan.
type Step struct {
	Page        int
	Action      pages.Action
	Disposition Disposition

	// Transform is set for trimmed pages.
	Transform *geometry.Transform

	// Crop is set for any kept page that receives a crop box.
	Crop *geometry.Rect
}

// Result is the rebuilt document and the plan that produced it.
type Result struct {
	Data []byte
	Plan []Step
}

// Kept counts the pages present in the output.
func (r *Result) Kept() int {
	n := 0
	for _, s := range r.Plan {
		if s.Disposition == Keep {
			n++
		}
	}
	return n
}

// Count returns how many planned pages carried action a.
func (r *Result) Count(a pages.Action) int {
	n := 0
	for _, s := range r.Plan {
		if s.Action == a {
			n++
		}
	}
	return n
}

type Rebuilder struct {
	m    Mutator
	opts Options
}

// New validates the trim configuration once; an invalid one is a startup error.
func New(m Mutator, opts Options) (*Rebuilder, error) {
	if m == nil {
		return nil, errors.New("rebuild: nil mutator")
	}
	if err := opts.Trim.Validate(); err != nil {
		return nil, fmt.Errorf("rebuild: %w", err)
	}
	return &Rebuilder{m: m, opts: opts}, nil
}

// Options returns the settings the rebuilder was created with.
func (r *Rebuilder) Options() Options { return r.opts }

// Step plans a single page of the given size.
func (r *Rebuilder) Step(page int, size geometry.Size, a pages.Action) (Step, error) {
	st := Step{Page: page, Action: a, Disposition: Keep}
	switch a {
	case pages.Remove:
		st.Disposition = Skip
	case pages.Trim:
		tr, err := geometry.Trim(size, r.opts.Trim)
		if err != nil {
			return Step{}, fmt.Errorf("page %d: %w", page, err)
		}
		st.Transform = &tr
		st.Crop = &tr.Crop
	default:
		if r.opts.CropBottomOnKeep && r.opts.Trim.Bottom > 0 {
			c, err := geometry.BottomStrip(size, r.opts.Trim.Bottom)
			if err != nil {
				return Step{}, fmt.Errorf("page %d: %w", page, err)
			}
			st.Crop = &c
		}
	}
	return st, nil
}

// Plan computes the rebuild plan for pages of the given sizes, in page order.
func (r *Rebuilder) Plan(sizes []geometry.Size, actions Actions) ([]Step, error) {
	plan := make([]Step, 0, len(sizes))
	for i, s := range sizes {
		p := i + 1
		st, err := r.Step(p, s, lookup(actions, p))
		if err != nil {
			return nil, err
		}
		plan = append(plan, st)
	}
	return plan, nil
}

// Inspect opens src with the mutator Rebuild will use and returns its page count.
// A document that fails here can never be exported.
func (r *Rebuilder) Inspect(src []byte) (int, error) {
	doc, err := r.m.Load(src)
	if err != nil {
		return 0, fault.Unreadable("", err)
	}
	return doc.PageCount(), nil
}

// Rebuild produces a new document from src. Removed pages are left out, trimmed pages are
// enlarged, rescaled and cropped, all other pages are copied as they are. The output keeps
// the original order of the remaining pages and may have zero pages.
func (r *Rebuilder) Rebuild(src []byte, actions Actions) (*Result, error) {
	if err := r.opts.Trim.Validate(); err != nil {
		return nil, err
	}
	doc, err := r.m.Load(src)
	if err != nil {
		return nil, fault.Unreadable("", err)
	}
	out, err := r.m.CreateEmpty(doc)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}

	n := doc.PageCount()
	res := &Result{Plan: make([]Step, 0, n)}
	for p := 1; p <= n; p++ {
		a := lookup(actions, p)
		if a == pages.Remove {
			res.Plan = append(res.Plan, Step{Page: p, Action: a, Disposition: Skip})
			continue
		}

		pg, err := doc.CopyPage(p)
		if err != nil {
			return nil, fmt.Errorf("copy page %d: %w", p, err)
		}
		st, err := r.Step(p, pg.Size(), a)
		if err != nil {
			return nil, err
		}
		apply(pg, st)
		if err := out.AddPage(pg); err != nil {
			return nil, fmt.Errorf("add page %d: %w", p, err)
		}
		res.Plan = append(res.Plan, st)
	}

	data, err := out.Save()
	if err != nil {
		return nil, fmt.Errorf("save output: %w", err)
	}
	res.Data = data
	if res.Kept() == 0 {
		log.Warn().Int("pages", n).Msg("every page removed; output has no pages")
	}
	return res, nil
}

func apply(pg Page, st Step) {
	if st.Transform != nil {
		pg.SetSize(st.Transform.Size)
		pg.ScaleContent(st.Transform.ScaleX, st.Transform.ScaleY)
	}
	if st.Crop != nil {
		pg.SetCropBox(*st.Crop)
	}
}

// lookup defaults untracked pages to None.
func lookup(actions Actions, page int) pages.Action {
	if actions == nil {
		return pages.None
	}
	a, err := actions.Get(page)
	if err != nil {
		log.Debug().Err(err).Int("page", page).Msg("page has no action; keeping it")
		return pages.None
	}
	return a
}

// OutputName is the file name of an export: <displayName>_<suffix>.pdf.
func OutputName(displayName, suffix string) string {
	if suffix == "" {
		suffix = DefaultSuffix
	}
	name := DisplayName(displayName)
	if name == "" {
		name = "document"
	}
	return name + "_" + suffix + ".pdf"
}

// UniqueName returns name the first time it is seen in used and "name (n).pdf" after that.
func UniqueName(used map[string]int, name string) string {
	n := used[name]
	used[name] = n + 1
	if n == 0 {
		return name
	}
	base := strings.TrimSuffix(name, ".pdf")
	for {
		n++
		cand := fmt.Sprintf("%s (%d).pdf", base, n)
		if used[cand] == 0 {
			used[cand] = 1
			return cand
		}
	}
}

// DisplayName strips directories and a trailing .pdf extension from a file name.
func DisplayName(fileName string) string {
	name := filepath.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		name = name[:len(name)-len(".pdf")]
	}
	return name
}
