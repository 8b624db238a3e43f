package rebuild

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pagetrim/internal/fault"
	"github.com/local/pagetrim/internal/geometry"
	"github.com/local/pagetrim/internal/pages"
)

var (
	a4      = geometry.Size{Width: 595.28, Height: 841.89}
	classic = Options{Trim: geometry.TrimConfig{Left: 0.126, Top: 0.125}}
	footer  = Options{Trim: geometry.TrimConfig{Left: 0.126, Top: 0.125, Bottom: 0.06}, CropBottomOnKeep: true}
)

// actionsOf builds a table whose page i+1 carries acts[i].
func actionsOf(t *testing.T, acts ...pages.Action) *pages.Table {
	t.Helper()
	tbl, err := pages.NewTable(len(acts), func(p int) pages.Action { return acts[p-1] })
	require.NoError(t, err)
	return tbl
}

func newRebuilder(t *testing.T, opts Options) (*Rebuilder, *fakeMutator) {
	t.Helper()
	m := &fakeMutator{}
	r, err := New(m, opts)
	require.NoError(t, err)
	return r, m
}

func TestRebuild_RemovalKeepsOrder(t *testing.T) {
	cases := []struct {
		name    string
		removed []int
		want    []int
	}{
		{"none removed", nil, []int{1, 2, 3, 4, 5, 6}},
		{"first", []int{1}, []int{2, 3, 4, 5, 6}},
		{"last", []int{6}, []int{1, 2, 3, 4, 5}},
		{"scattered", []int{2, 3, 5}, []int{1, 4, 6}},
		{"all", []int{1, 2, 3, 4, 5, 6}, []int{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			acts := make([]pages.Action, 6)
			for _, p := range tc.removed {
				acts[p-1] = pages.Remove
			}
			r, m := newRebuilder(t, classic)

			res, err := r.Rebuild(uniformDoc(6, a4), actionsOf(t, acts...))
			require.NoError(t, err)

			assert.Equal(t, tc.want, m.last.origins())
			assert.Equal(t, 6-len(tc.removed), res.Kept())
			assert.Len(t, res.Plan, 6)
			assert.True(t, m.last.saved)
		})
	}
}

func TestRebuild_NoneRemoveTrim(t *testing.T) {
	r, m := newRebuilder(t, classic)

	res, err := r.Rebuild(uniformDoc(3, a4), actionsOf(t, pages.None, pages.Remove, pages.Trim))
	require.NoError(t, err)
	require.Len(t, m.last.pages, 2)

	first := m.last.pages[0]
	assert.Equal(t, 1, first.origin)
	assert.Equal(t, a4, first.size)
	assert.Nil(t, first.crop)
	assert.Equal(t, 1.0, first.scaleX)

	second := m.last.pages[1]
	assert.Equal(t, 3, second.origin)
	want, err := geometry.Trim(a4, classic.Trim)
	require.NoError(t, err)
	assert.Equal(t, want.Size, second.size)
	assert.InDelta(t, want.ScaleX, second.scaleX, 1e-12)
	assert.InDelta(t, want.ScaleY, second.scaleY, 1e-12)
	require.NotNil(t, second.crop)
	assert.Equal(t, want.Crop, *second.crop)
	assert.True(t, second.crop.Within(second.size))
	assert.Greater(t, second.crop.X, 0.0)
	assert.Less(t, second.crop.Y+second.crop.Height, second.size.Height)

	assert.Equal(t, 1, res.Count(pages.Trim))
	assert.Equal(t, 1, res.Count(pages.Remove))
	assert.Equal(t, []byte("out:2"), res.Data)
}

func TestRebuild_UntouchedPagesPassThrough(t *testing.T) {
	sizes := []geometry.Size{a4, {Width: 612, Height: 792}, {Width: 842, Height: 595}}
	r, m := newRebuilder(t, classic)

	_, err := r.Rebuild(fakeDoc(sizes...), actionsOf(t, pages.None, pages.None, pages.None))
	require.NoError(t, err)
	require.Len(t, m.last.pages, 3)
	for i, p := range m.last.pages {
		assert.Equal(t, sizes[i], p.size)
		assert.Nil(t, p.crop)
		assert.Equal(t, 1.0, p.scaleX)
		assert.Equal(t, 1.0, p.scaleY)
	}
}

func TestRebuild_FooterProfileCropsEveryKeptPage(t *testing.T) {
	r, m := newRebuilder(t, footer)

	_, err := r.Rebuild(uniformDoc(2, a4), actionsOf(t, pages.None, pages.Trim))
	require.NoError(t, err)
	require.Len(t, m.last.pages, 2)

	kept := m.last.pages[0]
	assert.Equal(t, a4, kept.size, "kept pages are not resized")
	assert.Equal(t, 1.0, kept.scaleX)
	require.NotNil(t, kept.crop)
	assert.InDelta(t, a4.Height*0.06, kept.crop.Y, 1e-9)
	assert.InDelta(t, a4.Width, kept.crop.Width, 1e-9)

	trimmed := m.last.pages[1]
	require.NotNil(t, trimmed.crop)
	assert.InDelta(t, trimmed.size.Height*0.06, trimmed.crop.Y, 1e-9)
	assert.InDelta(t, trimmed.size.Height*(1-0.125-0.06), trimmed.crop.Height, 1e-9)
}

func TestRebuild_UntrackedPagesDefaultToNone(t *testing.T) {
	r, m := newRebuilder(t, classic)

	tbl := actionsOf(t, pages.Remove, pages.None, pages.None)
	require.NoError(t, tbl.Remove(3))

	res, err := r.Rebuild(uniformDoc(4, a4), tbl)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4}, m.last.origins())
	assert.Equal(t, pages.None, res.Plan[3].Action)

	_, err = r.Rebuild(uniformDoc(2, a4), nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, m.last.origins())
}

func TestRebuild_ZeroPageDocument(t *testing.T) {
	r, m := newRebuilder(t, classic)

	res, err := r.Rebuild([]byte("fake:"), nil)
	require.NoError(t, err)
	assert.Zero(t, res.Kept())
	assert.Empty(t, m.last.pages)
	assert.Equal(t, []byte("out:0"), res.Data)
}

func TestRebuild_UnreadableSource(t *testing.T) {
	r, _ := newRebuilder(t, classic)

	_, err := r.Rebuild([]byte("%PDF-garbage"), nil)
	assert.ErrorIs(t, err, fault.ErrSourceUnreadable)
}

func TestRebuild_DegeneratePageFails(t *testing.T) {
	r, _ := newRebuilder(t, classic)

	_, err := r.Rebuild(fakeDoc(geometry.Size{Width: 0, Height: 10}), actionsOf(t, pages.Trim))
	assert.ErrorIs(t, err, geometry.ErrDegeneratePage)
	assert.NotErrorIs(t, err, fault.ErrSourceUnreadable)
	assert.ErrorContains(t, err, "page 1")
}

func TestFakeDoc_ZeroWidthRoundTrips(t *testing.T) {
	src, err := (&fakeMutator{}).Load(fakeDoc(geometry.Size{Width: 0, Height: 10}, geometry.Size{Width: 1.5e3, Height: 2}))
	require.NoError(t, err)
	assert.Equal(t, []geometry.Size{{Width: 0, Height: 10}, {Width: 1500, Height: 2}}, src.(*fakeSource).sizes)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(&fakeMutator{}, Options{Trim: geometry.TrimConfig{Left: 1, Top: 0.1}})
	assert.ErrorIs(t, err, fault.ErrInvalidConfig)

	_, err = New(&fakeMutator{}, Options{Trim: geometry.TrimConfig{Left: 0.1, Top: 0.7, Bottom: 0.3}})
	assert.ErrorIs(t, err, fault.ErrInvalidConfig)

	_, err = New(nil, classic)
	assert.Error(t, err)
}

func TestPlan_IsComputedFromCurrentActions(t *testing.T) {
	r, _ := newRebuilder(t, classic)
	tbl := actionsOf(t, pages.None, pages.None)
	sizes := []geometry.Size{a4, a4}

	plan, err := r.Plan(sizes, tbl)
	require.NoError(t, err)
	assert.Equal(t, Keep, plan[1].Disposition)
	assert.Nil(t, plan[1].Transform)

	_, err = tbl.Cycle(2)
	require.NoError(t, err)
	plan, err = r.Plan(sizes, tbl)
	require.NoError(t, err)
	assert.Equal(t, Skip, plan[1].Disposition)

	_, err = tbl.Cycle(2)
	require.NoError(t, err)
	plan, err = r.Plan(sizes, tbl)
	require.NoError(t, err)
	require.NotNil(t, plan[1].Transform)
	assert.Equal(t, "keep", plan[1].Disposition.String())
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "apuntes_unwuolahfied.pdf", OutputName("apuntes", ""))
	assert.Equal(t, "apuntes_unwuolahfied.pdf", OutputName("apuntes.pdf", DefaultSuffix))
	assert.Equal(t, "Tema 1_clean.pdf", OutputName("dir/Tema 1.PDF", "clean"))
	assert.Equal(t, "document_x.pdf", OutputName("", "x"))
	assert.Equal(t, "notes.txt", DisplayName("C:\\tmp\\notes.txt"))
}

func TestInspect(t *testing.T) {
	r, _ := newRebuilder(t, classic)

	n, err := r.Inspect(uniformDoc(4, a4))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	_, err = r.Inspect([]byte("not fake"))
	assert.ErrorIs(t, err, fault.ErrSourceUnreadable)
}

func TestUniqueName(t *testing.T) {
	used := map[string]int{}
	assert.Equal(t, "a.pdf", UniqueName(used, "a.pdf"))
	assert.Equal(t, "a (2).pdf", UniqueName(used, "a.pdf"))
	assert.Equal(t, "a (3).pdf", UniqueName(used, "a.pdf"))
	assert.Equal(t, "b.pdf", UniqueName(used, "b.pdf"))

	used = map[string]int{}
	assert.Equal(t, "a (2).pdf", UniqueName(used, "a (2).pdf"))
	assert.Equal(t, "a.pdf", UniqueName(used, "a.pdf"))
	assert.Equal(t, "a (3).pdf", UniqueName(used, "a.pdf"))
}
