package main

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/spf13/pflag"

	"github.com/zsiec/tsmatch/internal/extract"
	"github.com/zsiec/tsmatch/internal/mpegts"
)

func cmdCut(args []string) int {
	fs := pflag.NewFlagSet("cut", pflag.ContinueOnError)
	fromByte := fs.Int64("from-byte", -1, "start byte offset")
	toByte := fs.Int64("to-byte", -1, "end byte offset (default: end of file)")
	fromTime := fs.Int64("from-time", -1, "start time in 90 kHz ticks (requires --hashes)")
	toTime := fs.Int64("to-time", -1, "end time in 90 kHz ticks (default: end of file)")
	hashes := fs.String("hashes", "", "hash file, required for time-based cuts")
	syncRun, syncWindow := syncFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitRange
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: tsmatch cut [flags] <video.ts> <output.ts>")
		return exitRange
	}
	video, output := fs.Arg(0), fs.Arg(1)

	byteMode := *fromByte >= 0 || *toByte >= 0
	timeMode := *fromTime >= 0 || *toTime >= 0
	switch {
	case byteMode && timeMode:
		fmt.Fprintln(os.Stderr, "specify byte offsets or times, not both")
		return exitRange
	case timeMode && *fromTime < 0:
		fmt.Fprintln(os.Stderr, "--to-time requires --from-time")
		return exitRange
	case timeMode && *hashes == "":
		fmt.Fprintln(os.Stderr, "time-based cuts require --hashes")
		return exitRange
	}

	src, err := os.Open(video)
	if err != nil {
		return fail("cannot open video", err)
	}
	defer src.Close()
	fi, err := src.Stat()
	if err != nil {
		return fail("cannot stat video", err)
	}

	var (
		base int64
		br   extract.ByteRange
	)
	if timeMode {
		store, err := readStore(*hashes)
		if err != nil {
			return fail("cannot read hash file", err)
		}
		base = store.Meta.BaseOffset

		end := *toTime
		if end < 0 {
			end = math.MaxInt64 // open end resolves to end of file
		}
		br, err = extract.ResolveTime(store, extract.TimeRange{Start: *fromTime, End: end})
		if err != nil {
			return fail("cannot resolve time range", err)
		}
	} else {
		start := *fromByte
		if start < 0 {
			start = 0
		}
		end := *toByte
		if end < 0 {
			end = fi.Size()
		}
		br = extract.ByteRange{Start: start, End: end}

		base, err = detectBase(video, *syncRun, *syncWindow)
		if err != nil {
			return fail("cannot detect packet alignment", err)
		}
	}

	dst, err := os.Create(output)
	if err != nil {
		return fail("cannot create output", err)
	}
	n, err := extract.Cut(src, fi.Size(), base, br, dst)
	if err != nil {
		dst.Close()
		return fail("cut failed", err)
	}
	if err := dst.Close(); err != nil {
		return fail("cannot write output", err)
	}

	slog.Info("segment written",
		"output", output,
		"bytes", n,
		"packets", n/mpegts.PacketSize,
	)
	return exitOK
}

// detectBase finds the alignment base of a transport stream file so cut
// boundaries snap to real packet boundaries.
func detectBase(path string, syncRun, syncWindow int) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	rd, err := mpegts.NewReader(f,
		mpegts.ReaderOptSyncRun(syncRun),
		mpegts.ReaderOptSyncWindow(syncWindow),
	)
	if err != nil {
		return 0, err
	}
	return rd.BaseOffset(), nil
}
