package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/local/pagetrim/internal/pages"
)

// parsePageList reads "1,3-5,9" into sorted unique 1-based page numbers.
func parsePageList(s string) ([]int, error) {
	seen := map[int]bool{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		from, err := pageNumber(lo)
		if err != nil {
			return nil, err
		}
		to := from
		if isRange {
			if to, err = pageNumber(hi); err != nil {
				return nil, err
			}
			if to < from {
				return nil, fmt.Errorf("invalid page range %q", part)
			}
		}
		for p := from; p <= to; p++ {
			seen[p] = true
		}
	}
	out := make([]int, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Ints(out)
	return out, nil
}

func pageNumber(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid page number %q", s)
	}
	return n, nil
}

// overrides maps pages to the action requested on the command line.
type overrides map[int]pages.Action

// buildOverrides merges the --keep, --remove and --trim lists. A page named twice is an error.
func buildOverrides(keep, remove, trim string) (overrides, error) {
	out := overrides{}
	for _, l := range []struct {
		list   string
		action pages.Action
	}{{keep, pages.None}, {remove, pages.Remove}, {trim, pages.Trim}} {
		ps, err := parsePageList(l.list)
		if err != nil {
			return nil, err
		}
		for _, p := range ps {
			if prev, ok := out[p]; ok && prev != l.action {
				return nil, fmt.Errorf("page %d is both %s and %s", p, prev, l.action)
			}
			out[p] = l.action
		}
	}
	return out, nil
}

// sorted returns the overridden pages in ascending order.
func (o overrides) sorted() []int {
	out := make([]int, 0, len(o))
	for p := range o {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}
