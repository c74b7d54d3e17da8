// Package match locates the best-aligned occurrence of a query fingerprint
// sequence inside a reference hash store. Matching is tolerant: a bounded
// fraction of per-position mismatches is accepted, so remuxed or partially
// corrupted copies still resolve to the right location.
package match

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/tsmatch/internal/hashstore"
)

// Sentinel errors for match outcomes. ErrNoConfidentMatch is a legitimate
// negative result, not a failure: no alignment reached the minimum score.
var (
	ErrInvalidInput     = errors.New("match: invalid input")
	ErrNoConfidentMatch = errors.New("match: no confident match")
)

// Options are the matching policy parameters. The right values are
// corpus-dependent, so none are hard-coded; zero values select defaults.
type Options struct {
	// MinScore is the minimum fraction of aligned positions that must
	// match for a candidate to qualify (default 0.9).
	MinScore float64

	// MaxAnchors caps the number of candidate anchors evaluated. When the
	// cap is hit the result is computed from the capped sample and flagged
	// (default 512).
	MaxAnchors int

	// RareAnchorMax is the largest reference occurrence count a query
	// fingerprint may have to serve as a fallback anchor (default 64).
	RareAnchorMax int

	// Workers is the number of goroutines scoring anchors
	// (default GOMAXPROCS).
	Workers int
}

func (o Options) withDefaults() Options {
	if o.MinScore <= 0 {
		o.MinScore = 0.9
	}
	if o.MaxAnchors <= 0 {
		o.MaxAnchors = 512
	}
	if o.RareAnchorMax <= 0 {
		o.RareAnchorMax = 64
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	return o
}

// Result describes the best alignment found for a query.
type Result struct {
	StartIndex int // first matched reference packet
	EndIndex   int // one past the last matched reference packet

	StartOffset int64
	EndOffset   int64

	StartTimestamp int64 // 90 kHz ticks, fingerprint.NoTimestamp when unknown
	EndTimestamp   int64

	Score  float64 // matched positions / query length, in [0,1]
	Capped bool    // anchor evaluation was cut off at MaxAnchors
}

// Match finds the highest-scoring alignment of query inside the reference
// store. Ties break toward the earliest reference position. Returns
// ErrNoConfidentMatch when no alignment reaches MinScore, and
// ErrInvalidInput for an empty query or reference.
func Match(ctx context.Context, query []uint64, store *hashstore.Store, opts Options) (*Result, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidInput)
	}
	if store == nil || store.Len() == 0 {
		return nil, fmt.Errorf("%w: empty reference", ErrInvalidInput)
	}
	o := opts.withDefaults()

	ref := store.Fingerprints()

	// Position index on the reference, owned by this call.
	index := make(map[uint64][]int, len(ref))
	for i, fp := range ref {
		index[fp] = append(index[fp], i)
	}

	// primary anchors: every occurrence of the first query fingerprint.
	anchors, capped := primaryAnchors(query, ref, index, o)
	best, err := scoreAnchors(ctx, query, ref, anchors, o)
	if err != nil {
		return nil, err
	}
	if best.anchor >= 0 && best.score >= o.MinScore {
		return buildResult(store, best, len(query), capped), nil
	}

	// Fallback: the first fingerprint may itself be the corrupted one.
	// Anchor on rare query fingerprints instead, shifted back by their
	// query position.
	anchors, capped = fallbackAnchors(query, ref, index, o)
	best, err = scoreAnchors(ctx, query, ref, anchors, o)
	if err != nil {
		return nil, err
	}
	if best.anchor >= 0 && best.score >= o.MinScore {
		return buildResult(store, best, len(query), capped), nil
	}
	return nil, ErrNoConfidentMatch
}

// primaryAnchors returns the valid anchor positions derived from
// occurrences of query[0], capped at MaxAnchors.
func primaryAnchors(query, ref []uint64, index map[uint64][]int, o Options) ([]int, bool) {
	var anchors []int
	for _, pos := range index[query[0]] {
		if pos+len(query) > len(ref) {
			continue // query would run past the reference end
		}
		anchors = append(anchors, pos)
	}
	return capAnchors(anchors, o.MaxAnchors)
}

// fallbackAnchors derives anchors from every query fingerprint whose
// reference occurrence count is at most RareAnchorMax, shifting each
// occurrence back by the fingerprint's query position.
func fallbackAnchors(query, ref []uint64, index map[uint64][]int, o Options) ([]int, bool) {
	seen := make(map[int]bool)
	var anchors []int
	for qi := 1; qi < len(query); qi++ {
		positions := index[query[qi]]
		if len(positions) == 0 || len(positions) > o.RareAnchorMax {
			continue
		}
		for _, pos := range positions {
			anchor := pos - qi
			if anchor < 0 || anchor+len(query) > len(ref) {
				continue
			}
			if !seen[anchor] {
				seen[anchor] = true
				anchors = append(anchors, anchor)
			}
		}
	}
	sort.Ints(anchors)
	return capAnchors(anchors, o.MaxAnchors)
}

func capAnchors(anchors []int, max int) ([]int, bool) {
	if len(anchors) > max {
		return anchors[:max], true
	}
	return anchors, false
}

type candidate struct {
	anchor int
	score  float64
}

func (c candidate) better(other candidate) bool {
	if c.score != other.score {
		return c.score > other.score
	}
	return c.anchor < other.anchor
}

// scoreAnchors evaluates all anchors in parallel and returns the best
// candidate, or anchor -1 when the slice is empty. Workers share only
// read-only views of the query and reference.
func scoreAnchors(ctx context.Context, query, ref []uint64, anchors []int, o Options) (candidate, error) {
	none := candidate{anchor: -1, score: -1}
	if len(anchors) == 0 {
		return none, nil
	}

	workers := o.Workers
	if workers > len(anchors) {
		workers = len(anchors)
	}
	chunk := (len(anchors) + workers - 1) / workers

	locals := make([]candidate, workers)
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		lo := w * chunk
		hi := min(lo+chunk, len(anchors))
		g.Go(func() error {
			best := none
			for _, anchor := range anchors[lo:hi] {
				if err := ctx.Err(); err != nil {
					return err
				}
				c := candidate{anchor: anchor, score: scoreAt(query, ref, anchor)}
				if c.better(best) {
					best = c
				}
			}
			locals[w] = best
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return none, err
	}

	best := none
	for _, c := range locals {
		if c.anchor >= 0 && c.better(best) {
			best = c
		}
	}
	return best, nil
}

// scoreAt walks query against the reference at the given alignment and
// returns the fraction of matching positions.
func scoreAt(query, ref []uint64, anchor int) float64 {
	matches := 0
	for i, fp := range query {
		if ref[anchor+i] == fp {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func buildResult(store *hashstore.Store, best candidate, queryLen int, capped bool) *Result {
	last := best.anchor + queryLen - 1
	return &Result{
		StartIndex:     best.anchor,
		EndIndex:       best.anchor + queryLen,
		StartOffset:    store.OffsetAt(best.anchor),
		EndOffset:      store.EndOffsetAt(last),
		StartTimestamp: store.TimestampAt(best.anchor),
		EndTimestamp:   store.TimestampAt(last),
		Score:          best.score,
		Capped:         capped,
	}
}
