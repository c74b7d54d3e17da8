// Command gen-fixtures writes synthetic transport stream fixtures for
// exercising tsmatch end to end: a full recording, a remuxed copy with
// rewritten continuity counters, and a segment cut from the copy with
// optional payload corruption.
//
// Typical use:
//
//	go run ./test/tools/gen-fixtures --out-dir fixtures --packets 20000
//	tsmatch hash fixtures/full.ts
//	tsmatch match fixtures/full.ts.tsmh fixtures/segment.ts
package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/zsiec/tsmatch/internal/mpegts"
)

const (
	videoPID = 0x100
	audioPID = 0x101
)

func main() {
	outDir := pflag.String("out-dir", "fixtures", "output directory")
	packets := pflag.Int("packets", 10000, "packets in the full recording")
	garbage := pflag.Int("leading-garbage", 0, "garbage bytes before the first packet of the recording")
	segStart := pflag.Int("segment-start", -1, "segment start packet (default: one third in)")
	segCount := pflag.Int("segment-packets", 300, "packets in the segment")
	corrupt := pflag.Int("corrupt", 0, "segment packets with corrupted payloads")
	seed := pflag.Int64("seed", 1, "generator seed")
	pflag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	start := *segStart
	if start < 0 {
		start = *packets / 3
	}
	if start+*segCount > *packets {
		slog.Error("segment extends past the recording",
			"start", start, "packets", *segCount, "total", *packets)
		os.Exit(1)
	}

	rng := rand.New(rand.NewSource(*seed))
	full := genStream(rng, *packets)

	remuxed := rewriteContinuity(full)
	segment := append([]byte(nil),
		remuxed[start*mpegts.PacketSize:(start+*segCount)*mpegts.PacketSize]...)
	for i := 0; i < *corrupt; i++ {
		p := rng.Intn(*segCount)
		segment[p*mpegts.PacketSize+20] ^= 0xFF
	}

	if *garbage > 0 {
		pad := make([]byte, *garbage)
		rng.Read(pad)
		for i, b := range pad {
			if b == mpegts.SyncByte {
				pad[i] = 0x00
			}
		}
		full = append(pad, full...)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		slog.Error("cannot create output directory", "error", err)
		os.Exit(1)
	}
	for name, data := range map[string][]byte{
		"full.ts":    full,
		"remuxed.ts": remuxed,
		"segment.ts": segment,
	} {
		path := filepath.Join(*outDir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			slog.Error("write failed", "path", path, "error", err)
			os.Exit(1)
		}
		slog.Info("fixture written", "path", path, "bytes", len(data))
	}
	fmt.Printf("segment covers packets %d..%d of the recording\n", start, start+*segCount-1)
}

// genStream builds a stream over a video and an audio PID with a PTS on
// every eighth video packet and pseudo-random payloads.
func genStream(rng *rand.Rand, n int) []byte {
	out := make([]byte, 0, n*mpegts.PacketSize)
	var ccVideo, ccAudio byte
	for i := 0; i < n; i++ {
		pkt := make([]byte, mpegts.PacketSize)
		pkt[0] = mpegts.SyncByte

		pid, cc := uint16(videoPID), &ccVideo
		if i%4 == 3 {
			pid, cc = audioPID, &ccAudio
		}
		pkt[1] = byte(pid>>8) & 0x1F
		pkt[2] = byte(pid)
		pkt[3] = 0x10 | (*cc & 0x0F)
		*cc++

		payload := pkt[4:]
		if pid == videoPID && i%8 == 0 {
			pkt[1] |= 0x40
			hdr := pesHeader(int64(i) * 3000)
			copy(payload, hdr)
			payload = payload[len(hdr):]
		}
		for j := range payload {
			payload[j] = byte(rng.Intn(256))
		}
		out = append(out, pkt...)
	}
	return out
}

// pesHeader builds a minimal video PES header carrying the given PTS.
func pesHeader(pts int64) []byte {
	return []byte{
		0x00, 0x00, 0x01, 0xE0, 0x00, 0x00, 0x80, 0x80, 0x05,
		byte(0x21 | byte(pts>>29)&0x0E),
		byte(pts >> 22),
		byte(pts>>14)&0xFE | 0x01,
		byte(pts >> 7),
		byte(pts<<1) | 0x01,
	}
}

// rewriteContinuity replaces every continuity counter, simulating a remux
// that leaves payload content untouched.
func rewriteContinuity(stream []byte) []byte {
	out := append([]byte(nil), stream...)
	for off := 0; off+mpegts.PacketSize <= len(out); off += mpegts.PacketSize {
		out[off+3] = out[off+3]&0xF0 | byte(off/mpegts.PacketSize+7)&0x0F
	}
	return out
}
