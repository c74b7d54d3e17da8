package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/zsiec/tsmatch/internal/config"
	"github.com/zsiec/tsmatch/internal/fingerprint"
	"github.com/zsiec/tsmatch/internal/hashstore"
	"github.com/zsiec/tsmatch/internal/match"
)

func cmdMatch(args []string) int {
	fs := pflag.NewFlagSet("match", pflag.ContinueOnError)
	minScore := fs.Float64("min-score",
		config.GetEnvFloat("TSMATCH_MIN_SCORE", 0.9),
		"minimum similarity score to report a match")
	maxAnchors := fs.Int("max-anchors",
		config.GetEnvInt("TSMATCH_MAX_ANCHORS", 512),
		"cap on candidate anchor positions evaluated")
	rareMax := fs.Int("rare-anchor-max",
		config.GetEnvInt("TSMATCH_RARE_ANCHOR_MAX", 64),
		"occurrence bound for fallback anchor fingerprints")
	syncRun, syncWindow := syncFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitRange
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: tsmatch match [flags] <hashfile.tsmh> <segment.ts>")
		return exitRange
	}
	hashPath, segPath := fs.Arg(0), fs.Arg(1)

	store, err := readStore(hashPath)
	if err != nil {
		return fail("cannot read hash file", err)
	}

	// Hash the segment with the same digest configuration the reference
	// was hashed with; the store records it.
	segOpts := fingerprint.Options{IncludeAdaptationField: store.Meta.IncludeAdaptationField}
	segStore, err := hashFile(segPath, segOpts, *syncRun, *syncWindow)
	if err != nil {
		return fail("cannot hash segment", err)
	}
	query := segStore.Fingerprints()

	slog.Debug("matching",
		"reference_packets", store.Len(),
		"query_packets", len(query),
		"min_score", *minScore,
	)

	res, err := match.Match(context.Background(), query, store, match.Options{
		MinScore:      *minScore,
		MaxAnchors:    *maxAnchors,
		RareAnchorMax: *rareMax,
	})
	if errors.Is(err, match.ErrNoConfidentMatch) {
		fmt.Println("no confident match")
		return exitNoMatch
	}
	if err != nil {
		return fail("match failed", err)
	}

	fmt.Printf("match: packets %d..%d of %d, score %.4f\n",
		res.StartIndex, res.EndIndex-1, store.Len(), res.Score)
	fmt.Printf("bytes: [%d, %d)\n", res.StartOffset, res.EndOffset)
	if res.StartTimestamp != fingerprint.NoTimestamp && res.EndTimestamp != fingerprint.NoTimestamp {
		fmt.Printf("time:  %s .. %s (ticks %d .. %d)\n",
			formatTicks(res.StartTimestamp), formatTicks(res.EndTimestamp),
			res.StartTimestamp, res.EndTimestamp)
	}
	if res.Capped {
		fmt.Println("note: anchor cap reached, result drawn from a bounded sample")
	}
	fmt.Printf("cut:   tsmatch cut --from-byte=%d --to-byte=%d <video.ts> <output.ts>\n",
		res.StartOffset, res.EndOffset)
	return exitOK
}

func readStore(path string) (*hashstore.Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return hashstore.Decode(f)
}

// formatTicks renders a 90 kHz tick count as seconds.
func formatTicks(ticks int64) string {
	return fmt.Sprintf("%.3fs", float64(ticks)/90000)
}
