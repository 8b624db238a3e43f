// Package pages tracks the action assigned to every page of every loaded document.
//
// Neither Table nor Store is safe for concurrent use; callers serialize access.
package pages

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/local/pagetrim/internal/fault"
)

// Record is one page and its current action.
type Record struct {
	Page   int    `json:"page"`
	Action Action `json:"action"`
}

// Table is the page-to-action mapping of a single document.
type Table struct {
	actions map[int]Action
}

// NewTable creates a record for each page in [1, pageCount]. With a nil rule every page starts as None.
func NewTable(pageCount int, rule PresetRule) (*Table, error) {
	if pageCount < 0 {
		return nil, fmt.Errorf("page count %d is negative", pageCount)
	}
	t := &Table{actions: make(map[int]Action, pageCount)}
	for p := 1; p <= pageCount; p++ {
		a := None
		if rule != nil {
			a = rule(p)
			if !a.Valid() {
				a = None
			}
		}
		t.actions[p] = a
	}
	return t, nil
}

// Len is the number of tracked pages.
func (t *Table) Len() int { return len(t.actions) }

// Get returns the action of page, or a NotFound error if it is not tracked.
func (t *Table) Get(page int) (Action, error) {
	a, ok := t.actions[page]
	if !ok {
		return None, pageNotFound(page)
	}
	return a, nil
}

// Cycle advances the action of page and returns the new value. Untracked pages are left alone.
func (t *Table) Cycle(page int) (Action, error) {
	a, ok := t.actions[page]
	if !ok {
		return None, pageNotFound(page)
	}
	next := a.Next()
	t.actions[page] = next
	return next, nil
}

// Remove stops tracking page.
func (t *Table) Remove(page int) error {
	if _, ok := t.actions[page]; !ok {
		return pageNotFound(page)
	}
	delete(t.actions, page)
	return nil
}

// Records lists tracked pages in ascending order.
func (t *Table) Records() []Record {
	out := make([]Record, 0, len(t.actions))
	for p, a := range t.actions {
		out = append(out, Record{Page: p, Action: a})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Page < out[j].Page })
	return out
}

// Counts tallies tracked pages per action.
func (t *Table) Counts() map[Action]int {
	out := map[Action]int{None: 0, Remove: 0, Trim: 0}
	for _, a := range t.actions {
		out[a]++
	}
	return out
}

func pageNotFound(page int) error {
	return &fault.NotFoundError{Resource: "page", ID: strconv.Itoa(page)}
}

// Store holds one Table per document id.
type Store struct {
	docs map[string]*Table
}

func NewStore() *Store {
	return &Store{docs: map[string]*Table{}}
}

// Initialize (re)creates the records of docID and returns them in page order.
func (s *Store) Initialize(docID string, pageCount int, rule PresetRule) ([]Record, error) {
	t, err := NewTable(pageCount, rule)
	if err != nil {
		return nil, err
	}
	s.docs[docID] = t
	return t.Records(), nil
}

// Table returns the mapping of docID.
func (s *Store) Table(docID string) (*Table, error) {
	t, ok := s.docs[docID]
	if !ok {
		return nil, &fault.NotFoundError{Resource: "document", ID: docID}
	}
	return t, nil
}

func (s *Store) Get(docID string, page int) (Action, error) {
	t, err := s.Table(docID)
	if err != nil {
		return None, err
	}
	return t.Get(page)
}

func (s *Store) Cycle(docID string, page int) (Action, error) {
	t, err := s.Table(docID)
	if err != nil {
		return None, err
	}
	return t.Cycle(page)
}

func (s *Store) Remove(docID string, page int) error {
	t, err := s.Table(docID)
	if err != nil {
		return err
	}
	return t.Remove(page)
}

// Clear drops every record of docID. Clearing an unknown document is a no-op.
func (s *Store) Clear(docID string) {
	delete(s.docs, docID)
}
