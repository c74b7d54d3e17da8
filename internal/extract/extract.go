// Package extract copies byte ranges out of a transport stream file,
// snapping to packet boundaries so the output is itself a structurally
// valid stream. Bytes are copied verbatim; nothing is re-encoded.
package extract

import (
	"fmt"
	"io"

	"github.com/zsiec/tsmatch/internal/hashstore"
	"github.com/zsiec/tsmatch/internal/mpegts"
)

// RangeError reports cut bounds that do not describe a valid sub-range of
// the source file.
type RangeError struct {
	Start  int64
	End    int64
	Size   int64
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("extract: range [%d, %d) of %d bytes: %s", e.Start, e.End, e.Size, e.Reason)
}

// ByteRange is a half-open byte range in the source file.
type ByteRange struct {
	Start int64
	End   int64
}

// TimeRange is a presentation time range in 90 kHz ticks.
type TimeRange struct {
	Start int64
	End   int64
}

// ResolveTime maps a time range to a byte range using the store's
// offset/timestamp table. The start resolves to the packet boundary at or
// before the target time (never overshooting it) and the end to the
// boundary at or after (never undershooting).
func ResolveTime(store *hashstore.Store, tr TimeRange) (ByteRange, error) {
	if store == nil || store.Len() == 0 {
		return ByteRange{}, fmt.Errorf("extract: empty hash store")
	}
	if tr.Start >= tr.End {
		return ByteRange{}, &RangeError{Start: tr.Start, End: tr.End, Reason: "start time not before end time"}
	}

	start := store.OffsetAt(0)
	if i, ok := store.IndexAtOrBefore(tr.Start); ok {
		start = store.OffsetAt(i)
	}

	end := store.Meta.SourceLen
	if i, ok := store.IndexAtOrAfter(tr.End); ok {
		end = store.EndOffsetAt(i)
	}

	return ByteRange{Start: start, End: end}, nil
}

// Cut copies the byte range [r.Start, r.End) of src to dst. The start is
// snapped down and the end snapped up to packet boundaries, measured as
// multiples of the packet size from base, so the output begins on a sync
// byte and holds whole packets. A partial trailing packet in a truncated
// source is never copied: the end is clamped to the last whole-packet
// boundary, keeping the output length a multiple of the packet size.
// Returns *RangeError when the range is inverted, negative, or outside
// the file.
func Cut(src io.ReaderAt, size int64, base int64, r ByteRange, dst io.Writer) (int64, error) {
	if r.Start < 0 {
		return 0, &RangeError{Start: r.Start, End: r.End, Size: size, Reason: "negative start"}
	}
	if r.Start >= r.End {
		return 0, &RangeError{Start: r.Start, End: r.End, Size: size, Reason: "start not before end"}
	}
	if r.End > size {
		return 0, &RangeError{Start: r.Start, End: r.End, Size: size, Reason: "end past end of file"}
	}

	start := snapDown(r.Start, base)
	end := snapUp(r.End, base)
	if last := snapDown(size, base); end > last {
		end = last
	}
	if end <= start {
		return 0, nil
	}

	return io.Copy(dst, io.NewSectionReader(src, start, end-start))
}

// snapDown rounds off down to the nearest packet boundary at or before it.
func snapDown(off, base int64) int64 {
	if off <= base {
		return base
	}
	return base + (off-base)/mpegts.PacketSize*mpegts.PacketSize
}

// snapUp rounds off up to the nearest packet boundary at or after it.
func snapUp(off, base int64) int64 {
	if off <= base {
		return base
	}
	rem := (off - base) % mpegts.PacketSize
	if rem == 0 {
		return off
	}
	return off + mpegts.PacketSize - rem
}
