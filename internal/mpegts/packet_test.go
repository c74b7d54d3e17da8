package mpegts

import (
	"testing"
)

func makePacket(pid uint16, cc uint8, pusi bool, payload []byte) []byte {
	buf := make([]byte, PacketSize)
	buf[0] = SyncByte
	buf[1] = byte(pid>>8) & 0x1F
	buf[2] = byte(pid)
	buf[3] = 0x10 | (cc & 0x0F) // payload only
	if pusi {
		buf[1] |= 0x40
	}
	copy(buf[4:], payload)
	return buf
}

func makePacketWithAF(pid uint16, cc uint8, afLen int, payload []byte) []byte {
	buf := make([]byte, PacketSize)
	buf[0] = SyncByte
	buf[1] = byte(pid>>8) & 0x1F
	buf[2] = byte(pid)
	if len(payload) > 0 {
		buf[3] = 0x30 | (cc & 0x0F) // adaptation + payload
	} else {
		buf[3] = 0x20 | (cc & 0x0F) // adaptation only
	}
	buf[4] = byte(afLen)
	// AF body is zeros (no flags set)
	offset := 5 + afLen
	if offset < PacketSize {
		copy(buf[offset:], payload)
	}
	return buf
}

// encodePTS packs a 33-bit timestamp into the 5-byte PES timestamp layout.
func encodePTS(prefix byte, pts int64) []byte {
	b := make([]byte, 5)
	b[0] = prefix<<4 | byte(pts>>29)&0x0E | 0x01
	b[1] = byte(pts >> 22)
	b[2] = byte(pts>>14)&0xFE | 0x01
	b[3] = byte(pts >> 7)
	b[4] = byte(pts<<1) | 0x01
	return b
}

// makePESPayload builds a minimal PES header carrying a PTS.
func makePESPayload(streamID byte, pts int64) []byte {
	p := []byte{0x00, 0x00, 0x01, streamID, 0x00, 0x00, 0x80, 0x80, 0x05}
	return append(p, encodePTS(0x02, pts)...)
}

func TestParsePacket_Normal(t *testing.T) {
	t.Parallel()
	payload := []byte{0x01, 0x02, 0x03}
	buf := makePacket(0x100, 5, false, payload)

	p, err := parsePacket(buf)
	if err != nil {
		t.Fatal(err)
	}

	if p.Header.PID != 0x100 {
		t.Errorf("PID = %d, want %d", p.Header.PID, 0x100)
	}
	if p.Header.ContinuityCounter != 5 {
		t.Errorf("CC = %d, want 5", p.Header.ContinuityCounter)
	}
	if p.Header.PayloadUnitStartIndicator {
		t.Error("PUSI should be false")
	}
	if !p.Header.HasPayload {
		t.Error("HasPayload should be true")
	}
	if p.Header.HasAdaptationField {
		t.Error("HasAdaptationField should be false")
	}
	if len(p.Payload) != 184 {
		t.Errorf("payload length = %d, want 184", len(p.Payload))
	}
	if p.PTS != nil {
		t.Error("PTS should be nil without PUSI")
	}
}

func TestParsePacket_AdaptationField(t *testing.T) {
	t.Parallel()
	buf := makePacketWithAF(0x1E1, 3, 7, []byte{0xAA})

	p, err := parsePacket(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Header.HasAdaptationField {
		t.Fatal("HasAdaptationField should be true")
	}
	if len(p.AdaptationField) != 8 { // length byte + 7 body bytes
		t.Errorf("AF length = %d, want 8", len(p.AdaptationField))
	}
	if len(p.Payload) != PacketSize-4-8 {
		t.Errorf("payload length = %d, want %d", len(p.Payload), PacketSize-4-8)
	}
	if p.Payload[0] != 0xAA {
		t.Error("payload content mismatch after adaptation field")
	}
}

func TestParsePacket_BadSync(t *testing.T) {
	t.Parallel()
	buf := makePacket(0x100, 0, false, nil)
	buf[0] = 0x48
	if _, err := parsePacket(buf); err == nil {
		t.Fatal("expected error for bad sync byte")
	}
}

func TestParsePacket_PTS(t *testing.T) {
	t.Parallel()
	const want = int64(1234567890) // fits in 33 bits
	buf := makePacket(0x1E1, 0, true, makePESPayload(0xE0, want))

	p, err := parsePacket(buf)
	if err != nil {
		t.Fatal(err)
	}
	if p.PTS == nil {
		t.Fatal("PTS should be set")
	}
	if p.PTS.Base != want {
		t.Errorf("PTS = %d, want %d", p.PTS.Base, want)
	}
	if p.DTS != nil {
		t.Error("DTS should be nil for PTS-only header")
	}
}

func TestParsePacket_PaddingStreamNoPTS(t *testing.T) {
	t.Parallel()
	payload := []byte{0x00, 0x00, 0x01, 0xBE, 0x00, 0x00, 0x80, 0x80, 0x05}
	buf := makePacket(0x1FF, 0, true, payload)

	p, err := parsePacket(buf)
	if err != nil {
		t.Fatal(err)
	}
	if p.PTS != nil {
		t.Error("padding stream must not yield a PTS")
	}
}

func TestEncodePTSRoundTrip(t *testing.T) {
	t.Parallel()
	for _, pts := range []int64{0, 1, 90000, 1<<33 - 1, 8589934591 / 2} {
		got := parsePTSOrDTS(encodePTS(0x02, pts))
		if got == nil || got.Base != pts {
			t.Errorf("round trip of %d failed, got %+v", pts, got)
		}
	}
}
