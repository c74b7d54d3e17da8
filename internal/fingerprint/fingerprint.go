// Package fingerprint reduces a transport stream to an ordered sequence of
// fixed-width content fingerprints, one per packet. The digest covers only
// content-stable fields, so a remuxed copy of the same stream (continuity
// counters rewritten, stuffing changed) produces an identical sequence.
package fingerprint

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/cespare/xxhash/v2"

	"github.com/zsiec/tsmatch/internal/mpegts"
)

// NoTimestamp marks a packet for which no PTS has been observed yet.
const NoTimestamp int64 = -1

// Entry is one packet's contribution to a fingerprint sequence.
type Entry struct {
	Fingerprint uint64
	Offset      int64
	Timestamp   int64 // 90 kHz ticks, NoTimestamp when unknown
}

// Options control which packet fields enter the digest.
type Options struct {
	// IncludeAdaptationField adds the adaptation field bytes to the digest
	// input. Off by default: stuffing and PCR values legitimately change
	// when a stream is remuxed.
	IncludeAdaptationField bool
}

// Hash computes the content fingerprint of a single packet. The digest
// covers the PID and the payload bytes; the continuity counter and, unless
// opted in, the adaptation field are excluded.
func Hash(p *mpegts.Packet, opts Options) uint64 {
	d := xxhash.New()
	var pid [2]byte
	binary.BigEndian.PutUint16(pid[:], p.Header.PID)
	d.Write(pid[:])
	if opts.IncludeAdaptationField {
		d.Write(p.AdaptationField)
	}
	d.Write(p.Payload)
	return d.Sum64()
}

// Builder accumulates fingerprint entries from a packet stream, propagating
// the most recent PTS to packets that carry none.
type Builder struct {
	opts  Options
	last  int64
	byPID map[uint16]int64
}

// NewBuilder returns a Builder with the given digest options.
func NewBuilder(opts Options) *Builder {
	return &Builder{
		opts:  opts,
		last:  NoTimestamp,
		byPID: make(map[uint16]int64),
	}
}

// Add fingerprints a single packet. A packet with a PTS records it for its
// PID; a packet without one inherits the last PTS seen on the same PID, or
// failing that the last seen on any PID, or NoTimestamp.
func (b *Builder) Add(p *mpegts.Packet) Entry {
	ts := NoTimestamp
	switch {
	case p.PTS != nil:
		ts = p.PTS.Base
		b.byPID[p.Header.PID] = ts
		b.last = ts
	default:
		if v, ok := b.byPID[p.Header.PID]; ok {
			ts = v
		} else {
			ts = b.last
		}
	}
	return Entry{
		Fingerprint: Hash(p, b.opts),
		Offset:      p.Offset,
		Timestamp:   ts,
	}
}

// Build consumes rd to EOF and returns one entry per packet in stream
// order. Deterministic: identical input bytes always yield an identical
// sequence.
func Build(rd *mpegts.Reader, opts Options) ([]Entry, error) {
	b := NewBuilder(opts)
	var entries []Entry
	for {
		p, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, b.Add(p))
	}
}
