package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/zsiec/tsmatch/internal/config"
	"github.com/zsiec/tsmatch/internal/fingerprint"
	"github.com/zsiec/tsmatch/internal/hashstore"
	"github.com/zsiec/tsmatch/internal/mpegts"
)

func cmdHash(args []string) int {
	fs := pflag.NewFlagSet("hash", pflag.ContinueOnError)
	output := fs.StringP("output", "o", "", "output hash file (default <video>.tsmh)")
	includeAF := fs.Bool("include-adaptation-field",
		config.GetEnvBool("TSMATCH_INCLUDE_ADAPTATION_FIELD", false),
		"include adaptation field bytes in the fingerprint digest")
	syncRun, syncWindow := syncFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitRange
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: tsmatch hash [flags] <video.ts>")
		return exitRange
	}
	video := fs.Arg(0)

	store, err := hashFile(video, fingerprint.Options{IncludeAdaptationField: *includeAF}, *syncRun, *syncWindow)
	if err != nil {
		return fail("hashing failed", err)
	}

	out := *output
	if out == "" {
		out = video + ".tsmh"
	}
	f, err := os.Create(out)
	if err != nil {
		return fail("cannot create hash file", err)
	}
	if err := store.Encode(f); err != nil {
		f.Close()
		return fail("cannot write hash file", err)
	}
	if err := f.Close(); err != nil {
		return fail("cannot write hash file", err)
	}

	slog.Info("hash file written",
		"source", video,
		"output", out,
		"packets", store.Len(),
		"base_offset", store.Meta.BaseOffset,
	)
	return exitOK
}

// syncFlags registers the packet alignment flags shared by commands that
// read a transport stream.
func syncFlags(fs *pflag.FlagSet) (syncRun, syncWindow *int) {
	syncRun = fs.Int("sync-run",
		config.GetEnvInt("TSMATCH_SYNC_RUN", 4),
		"consecutive valid-spaced sync bytes required to accept alignment")
	syncWindow = fs.Int("sync-window",
		config.GetEnvInt("TSMATCH_SYNC_WINDOW", 2<<20),
		"maximum bytes scanned for packet alignment")
	return syncRun, syncWindow
}

// hashFile fingerprints every packet of the transport stream file at path.
func hashFile(path string, opts fingerprint.Options, syncRun, syncWindow int) (*hashstore.Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	rd, err := mpegts.NewReader(f,
		mpegts.ReaderOptSyncRun(syncRun),
		mpegts.ReaderOptSyncWindow(syncWindow),
	)
	if err != nil {
		return nil, err
	}

	entries, err := fingerprint.Build(rd, opts)
	if err != nil {
		return nil, err
	}

	return hashstore.New(hashstore.Meta{
		PacketSize:             mpegts.PacketSize,
		BaseOffset:             rd.BaseOffset(),
		SourceLen:              fi.Size(),
		IncludeAdaptationField: opts.IncludeAdaptationField,
	}, entries), nil
}
