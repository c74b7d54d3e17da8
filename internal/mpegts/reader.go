package mpegts

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

const (
	defaultSyncRun    = 4
	defaultSyncWindow = 2 << 20
)

// AlignmentError reports that no valid packet framing could be located
// within the scan window. The input is not a transport stream or is too
// corrupted to process.
type AlignmentError struct {
	Scanned int // bytes examined
	Run     int // consecutive aligned sync bytes required
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("mpegts: no run of %d sync bytes spaced %d apart in %d scanned bytes",
		e.Run, PacketSize, e.Scanned)
}

// Reader iterates over the packets of a transport stream. It is single-pass
// and not restartable: a second pass requires reopening the source.
type Reader struct {
	br      *bufio.Reader
	buf     [PacketSize]byte
	full    bool  // buf already holds the next, possibly misframed, packet
	offset  int64 // absolute offset of the packet currently in buf
	base    int64
	syncRun int
	window  int
	err     error
}

// NewReader aligns to the first valid packet boundary in r and returns a
// Reader positioned there. If the stream does not begin with a sync byte,
// up to the scan window is searched for a run of sync bytes spaced exactly
// PacketSize apart. Returns *AlignmentError when no such run exists.
func NewReader(r io.Reader, opts ...func(*Reader)) (*Reader, error) {
	rd := &Reader{
		syncRun: defaultSyncRun,
		window:  defaultSyncWindow,
	}
	for _, opt := range opts {
		opt(rd)
	}
	size := rd.window
	if size < PacketSize*rd.syncRun {
		size = PacketSize * rd.syncRun
	}
	rd.br = bufio.NewReaderSize(r, size)
	if err := rd.align(); err != nil {
		return nil, err
	}
	return rd, nil
}

// ReaderOptSyncRun sets the number of consecutive valid-spaced sync bytes
// required to accept an alignment (default 4).
func ReaderOptSyncRun(n int) func(*Reader) {
	return func(rd *Reader) {
		if n > 0 {
			rd.syncRun = n
		}
	}
}

// ReaderOptSyncWindow sets the maximum number of bytes scanned for packet
// framing, both at construction and after mid-stream framing loss.
func ReaderOptSyncWindow(n int) func(*Reader) {
	return func(rd *Reader) {
		if n > 0 {
			rd.window = n
		}
	}
}

// BaseOffset returns the byte offset of the first aligned packet in the
// source. Packet boundaries are multiples of PacketSize from this base.
func (rd *Reader) BaseOffset() int64 {
	return rd.base
}

func (rd *Reader) align() error {
	data, err := rd.br.Peek(rd.window)
	if len(data) == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			return &AlignmentError{Scanned: 0, Run: rd.syncRun}
		}
		return err
	}
	for i := 0; i+PacketSize <= len(data); i++ {
		if data[i] != SyncByte {
			continue
		}
		if syncRunAt(data, i, rd.syncRun) {
			if _, err := rd.br.Discard(i); err != nil {
				return err
			}
			rd.base = int64(i)
			rd.offset = rd.base
			return nil
		}
	}
	return &AlignmentError{Scanned: len(data), Run: rd.syncRun}
}

// syncRunAt reports whether data holds a run of want sync bytes spaced
// PacketSize apart starting at i. Positions past the end of data are not
// counted against the run, so short tails can still align.
func syncRunAt(data []byte, i, want int) bool {
	for k := 0; k < want; k++ {
		pos := i + k*PacketSize
		if pos >= len(data) {
			break
		}
		if data[pos] != SyncByte {
			return false
		}
	}
	return true
}

// Next returns the next packet in stream order, or io.EOF once the source
// is exhausted. A partial trailing packet is discarded. On loss of framing
// mid-stream the reader rescans forward for a valid sync run; if none is
// found within the scan window it fails with *AlignmentError.
func (rd *Reader) Next() (*Packet, error) {
	if rd.err != nil {
		return nil, rd.err
	}
	for {
		if !rd.full {
			if _, err := io.ReadFull(rd.br, rd.buf[:]); err != nil {
				rd.err = eofOr(err)
				return nil, rd.err
			}
		}
		rd.full = false
		if rd.buf[0] != SyncByte {
			if err := rd.resync(); err != nil {
				rd.err = err
				return nil, err
			}
			continue
		}
		pkt, err := parsePacket(rd.buf[:])
		if err != nil {
			rd.err = err
			return nil, err
		}
		pkt.Offset = rd.offset
		rd.offset += PacketSize
		return pkt, nil
	}
}

// resync recovers framing after a misframed packet landed in buf. It scans
// the buffered bytes and then the stream, byte by byte, for the next
// position with a valid sync run, leaving the reframed packet in buf.
func (rd *Reader) resync() error {
	scanned := 0
	for {
		for j := 1; j < PacketSize; j++ {
			if rd.buf[j] != SyncByte || !rd.verifyRun(j) {
				continue
			}
			copy(rd.buf[:], rd.buf[j:])
			if _, err := io.ReadFull(rd.br, rd.buf[PacketSize-j:]); err != nil {
				return eofOr(err)
			}
			rd.offset += int64(j)
			rd.full = true
			return nil
		}
		scanned += PacketSize
		if scanned >= rd.window {
			return &AlignmentError{Scanned: scanned, Run: rd.syncRun}
		}
		rd.offset += PacketSize
		if _, err := io.ReadFull(rd.br, rd.buf[:]); err != nil {
			return eofOr(err)
		}
		if rd.buf[0] == SyncByte && rd.verifyRun(0) {
			rd.full = true
			return nil
		}
	}
}

// verifyRun checks that further sync bytes follow the candidate at buf[j]
// with exact PacketSize spacing, using buffered lookahead. Positions past
// EOF are not counted against the run.
func (rd *Reader) verifyRun(j int) bool {
	need := j + (rd.syncRun-1)*PacketSize - PacketSize + 1
	if need <= 0 {
		return true
	}
	ahead, _ := rd.br.Peek(need)
	for k := 1; k < rd.syncRun; k++ {
		pos := j + k*PacketSize - PacketSize
		if pos >= len(ahead) {
			break
		}
		if ahead[pos] != SyncByte {
			return false
		}
	}
	return true
}

func eofOr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return io.EOF
	}
	return err
}
