package mpegts

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"testing"
)

// buildStream concatenates packets for the given PIDs with incrementing
// continuity counters.
func buildStream(pids ...uint16) []byte {
	var b bytes.Buffer
	for i, pid := range pids {
		b.Write(makePacket(pid, uint8(i), false, []byte{byte(i)}))
	}
	return b.Bytes()
}

func readAll(t *testing.T, rd *Reader) []*Packet {
	t.Helper()
	var pkts []*Packet
	for {
		p, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return pkts
		}
		if err != nil {
			t.Fatal(err)
		}
		pkts = append(pkts, p)
	}
}

func TestReader_Aligned(t *testing.T) {
	t.Parallel()
	stream := buildStream(0x100, 0x101, 0x100, 0x102)

	rd, err := NewReader(bytes.NewReader(stream))
	if err != nil {
		t.Fatal(err)
	}
	if rd.BaseOffset() != 0 {
		t.Errorf("base offset = %d, want 0", rd.BaseOffset())
	}

	pkts := readAll(t, rd)
	if len(pkts) != 4 {
		t.Fatalf("packet count = %d, want 4", len(pkts))
	}
	for i, p := range pkts {
		if p.Offset != int64(i*PacketSize) {
			t.Errorf("packet %d offset = %d, want %d", i, p.Offset, i*PacketSize)
		}
	}
	if pkts[1].Header.PID != 0x101 {
		t.Errorf("packet 1 PID = %d, want 0x101", pkts[1].Header.PID)
	}
}

func TestReader_LeadingGarbage(t *testing.T) {
	t.Parallel()
	garbage := make([]byte, 301)
	for i := range garbage {
		garbage[i] = 0xFF
	}
	stream := append(garbage, buildStream(0x100, 0x101, 0x102, 0x103, 0x104)...)

	rd, err := NewReader(bytes.NewReader(stream))
	if err != nil {
		t.Fatal(err)
	}
	if rd.BaseOffset() != 301 {
		t.Errorf("base offset = %d, want 301", rd.BaseOffset())
	}

	pkts := readAll(t, rd)
	if len(pkts) != 5 {
		t.Fatalf("packet count = %d, want 5", len(pkts))
	}
	if pkts[0].Offset != 301 {
		t.Errorf("first packet offset = %d, want 301", pkts[0].Offset)
	}
}

func TestReader_FalseSyncInGarbage(t *testing.T) {
	t.Parallel()
	// A lone 0x47 in the garbage must not be accepted: the bytes 188
	// further on do not hold sync bytes.
	garbage := make([]byte, 400)
	for i := range garbage {
		garbage[i] = 0x11
	}
	garbage[10] = SyncByte
	stream := append(garbage, buildStream(0x100, 0x101, 0x102, 0x103, 0x104)...)

	rd, err := NewReader(bytes.NewReader(stream))
	if err != nil {
		t.Fatal(err)
	}
	if rd.BaseOffset() != 400 {
		t.Errorf("base offset = %d, want 400", rd.BaseOffset())
	}
}

func TestReader_NotATransportStream(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(7))
	junk := make([]byte, 64*1024)
	for i := range junk {
		junk[i] = byte(rng.Intn(256))
		if junk[i] == SyncByte {
			junk[i] = 0x00 // keep sync bytes out so no run can form
		}
	}

	_, err := NewReader(bytes.NewReader(junk))
	var ae *AlignmentError
	if !errors.As(err, &ae) {
		t.Fatalf("error = %v, want *AlignmentError", err)
	}
}

func TestReader_Empty(t *testing.T) {
	t.Parallel()
	_, err := NewReader(bytes.NewReader(nil))
	var ae *AlignmentError
	if !errors.As(err, &ae) {
		t.Fatalf("error = %v, want *AlignmentError", err)
	}
}

func TestReader_PartialTailDropped(t *testing.T) {
	t.Parallel()
	stream := buildStream(0x100, 0x101)
	stream = append(stream, SyncByte, 0x00, 0x64) // truncated third packet

	rd, err := NewReader(bytes.NewReader(stream))
	if err != nil {
		t.Fatal(err)
	}
	pkts := readAll(t, rd)
	if len(pkts) != 2 {
		t.Fatalf("packet count = %d, want 2", len(pkts))
	}
}

func TestReader_MidStreamResync(t *testing.T) {
	t.Parallel()
	// Two good packets, 50 bytes of garbage, then four more good packets.
	var b bytes.Buffer
	b.Write(buildStream(0x100, 0x101))
	b.Write(bytes.Repeat([]byte{0xEE}, 50))
	tail := buildStream(0x200, 0x201, 0x202, 0x203)
	b.Write(tail)

	rd, err := NewReader(bytes.NewReader(b.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	pkts := readAll(t, rd)
	if len(pkts) != 6 {
		t.Fatalf("packet count = %d, want 6", len(pkts))
	}
	wantOff := int64(2*PacketSize + 50)
	if pkts[2].Offset != wantOff {
		t.Errorf("resynced packet offset = %d, want %d", pkts[2].Offset, wantOff)
	}
	if pkts[2].Header.PID != 0x200 {
		t.Errorf("resynced packet PID = %d, want 0x200", pkts[2].Header.PID)
	}
}

func TestReader_SingleUse(t *testing.T) {
	t.Parallel()
	rd, err := NewReader(bytes.NewReader(buildStream(0x100)))
	if err != nil {
		t.Fatal(err)
	}
	readAll(t, rd)
	if _, err := rd.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next after EOF = %v, want io.EOF", err)
	}
}

func TestReader_ShortFileBelowSyncRun(t *testing.T) {
	t.Parallel()
	// Two packets only, fewer than the default run of 4: tails shorter
	// than the run must still align.
	stream := buildStream(0x100, 0x101)
	rd, err := NewReader(bytes.NewReader(stream))
	if err != nil {
		t.Fatal(err)
	}
	if got := len(readAll(t, rd)); got != 2 {
		t.Fatalf("packet count = %d, want 2", got)
	}
}
