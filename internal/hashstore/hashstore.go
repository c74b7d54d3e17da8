// Package hashstore persists the fingerprint sequence of a transport
// stream file as a versioned binary table. A store is written once per
// hash run and never mutated; a re-hash produces a new store.
package hashstore

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/zsiec/tsmatch/internal/fingerprint"
)

var magic = [4]byte{'T', 'S', 'M', 'H'}

const (
	version    = 1
	headerSize = 32 // magic + version + digest flags + packet size + base + source len + count
	recordSize = 24 // fingerprint + offset + timestamp
)

// Digest flag bits recorded in the header so a matching run hashes the
// query exactly the way the reference was hashed.
const flagIncludeAdaptationField = 0x01

// maxPacketCount rejects header counts no plausible hash file could carry
// (past 800 TB of source). decodeAllocCap bounds the slice capacity taken
// on trust from the header; anything larger is grown only as records are
// actually read, so a lying count fails at read time instead of at make.
const (
	maxPacketCount = 1 << 42
	decodeAllocCap = 1 << 16
)

// FormatError reports a malformed or truncated hash file. Check names the
// validation that failed.
type FormatError struct {
	Check string
	Err   error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("hashstore: bad %s: %v", e.Check, e.Err)
	}
	return fmt.Sprintf("hashstore: bad %s", e.Check)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Meta describes the hashed source file and how it was fingerprinted.
type Meta struct {
	PacketSize uint16
	BaseOffset int64
	SourceLen  int64

	// IncludeAdaptationField records whether adaptation field bytes were
	// part of the digest input.
	IncludeAdaptationField bool
}

// Store is the ordered fingerprint table of a source file: one entry per
// packet, in file order. Immutable once built; concurrent readers are safe.
type Store struct {
	Meta    Meta
	Entries []fingerprint.Entry
}

// New builds a store from a built fingerprint sequence.
func New(meta Meta, entries []fingerprint.Entry) *Store {
	return &Store{Meta: meta, Entries: entries}
}

// Len returns the number of packets in the store.
func (s *Store) Len() int {
	return len(s.Entries)
}

// Fingerprints returns the bare fingerprint sequence in file order.
func (s *Store) Fingerprints() []uint64 {
	fps := make([]uint64, len(s.Entries))
	for i, e := range s.Entries {
		fps[i] = e.Fingerprint
	}
	return fps
}

// OffsetAt returns the byte offset of packet i in the source file.
func (s *Store) OffsetAt(i int) int64 {
	return s.Entries[i].Offset
}

// EndOffsetAt returns the byte offset one past packet i.
func (s *Store) EndOffsetAt(i int) int64 {
	return s.Entries[i].Offset + int64(s.Meta.PacketSize)
}

// TimestampAt returns the propagated timestamp of packet i, or
// fingerprint.NoTimestamp when none was known by that point.
func (s *Store) TimestampAt(i int) int64 {
	return s.Entries[i].Timestamp
}

// IndexAtOrBefore returns the last packet whose known timestamp does not
// exceed ts. Used to resolve a start time without overshooting it. The
// second return is false when no packet qualifies.
func (s *Store) IndexAtOrBefore(ts int64) (int, bool) {
	best := -1
	for i, e := range s.Entries {
		if e.Timestamp == fingerprint.NoTimestamp {
			continue
		}
		if e.Timestamp <= ts {
			best = i
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}

// IndexAtOrAfter returns the first packet whose known timestamp is at
// least ts. Used to resolve an end time without undershooting it. The
// second return is false when no packet qualifies.
func (s *Store) IndexAtOrAfter(ts int64) (int, bool) {
	for i, e := range s.Entries {
		if e.Timestamp == fingerprint.NoTimestamp {
			continue
		}
		if e.Timestamp >= ts {
			return i, true
		}
	}
	return 0, false
}

// Encode writes the store in its binary form: a fixed header followed by
// one 24-byte record per packet, all big-endian.
func (s *Store) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)

	var hdr [headerSize]byte
	copy(hdr[0:4], magic[:])
	hdr[4] = version
	if s.Meta.IncludeAdaptationField {
		hdr[5] |= flagIncludeAdaptationField
	}
	binary.BigEndian.PutUint16(hdr[6:8], s.Meta.PacketSize)
	binary.BigEndian.PutUint64(hdr[8:16], uint64(s.Meta.BaseOffset))
	binary.BigEndian.PutUint64(hdr[16:24], uint64(s.Meta.SourceLen))
	binary.BigEndian.PutUint64(hdr[24:32], uint64(len(s.Entries)))
	if _, err := bw.Write(hdr[:]); err != nil {
		return err
	}

	var rec [recordSize]byte
	for _, e := range s.Entries {
		binary.BigEndian.PutUint64(rec[0:8], e.Fingerprint)
		binary.BigEndian.PutUint64(rec[8:16], uint64(e.Offset))
		binary.BigEndian.PutUint64(rec[16:24], uint64(e.Timestamp))
		if _, err := bw.Write(rec[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Decode reads a store back from its binary form. Returns *FormatError on
// malformed or truncated input, naming the failed check.
func Decode(r io.Reader) (*Store, error) {
	br := bufio.NewReader(r)

	var hdr [headerSize]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, &FormatError{Check: "header", Err: err}
	}
	if !bytes.Equal(hdr[0:4], magic[:]) {
		return nil, &FormatError{Check: "magic"}
	}
	if hdr[4] != version {
		return nil, &FormatError{Check: "version", Err: fmt.Errorf("got %d, support %d", hdr[4], version)}
	}
	if hdr[5]&^flagIncludeAdaptationField != 0 {
		return nil, &FormatError{Check: "digest flags", Err: fmt.Errorf("unknown bits 0x%02X", hdr[5])}
	}

	meta := Meta{
		IncludeAdaptationField: hdr[5]&flagIncludeAdaptationField != 0,
		PacketSize:             binary.BigEndian.Uint16(hdr[6:8]),
		BaseOffset:             int64(binary.BigEndian.Uint64(hdr[8:16])),
		SourceLen:              int64(binary.BigEndian.Uint64(hdr[16:24])),
	}
	if meta.PacketSize == 0 {
		return nil, &FormatError{Check: "packet size"}
	}

	count := binary.BigEndian.Uint64(hdr[24:32])
	if count > maxPacketCount {
		return nil, &FormatError{Check: "packet count", Err: fmt.Errorf("%d records", count)}
	}

	entries := make([]fingerprint.Entry, 0, min(count, decodeAllocCap))
	var rec [recordSize]byte
	for i := uint64(0); i < count; i++ {
		if _, err := io.ReadFull(br, rec[:]); err != nil {
			return nil, &FormatError{Check: "truncated record", Err: fmt.Errorf("record %d: %w", i, err)}
		}
		entries = append(entries, fingerprint.Entry{
			Fingerprint: binary.BigEndian.Uint64(rec[0:8]),
			Offset:      int64(binary.BigEndian.Uint64(rec[8:16])),
			Timestamp:   int64(binary.BigEndian.Uint64(rec[16:24])),
		})
	}

	if _, err := br.ReadByte(); err != io.EOF {
		return nil, &FormatError{Check: "length", Err: fmt.Errorf("trailing bytes after %d records", count)}
	}

	return New(meta, entries), nil
}
