package mpegts

// isPESPayload checks for the PES start code prefix (0x000001).
func isPESPayload(data []byte) bool {
	return len(data) >= 3 && data[0] == 0x00 && data[1] == 0x00 && data[2] == 0x01
}

// parsePESTimestamps extracts PTS and DTS from the optional header of a PES
// packet beginning at the start of payload. Returns nils when the payload
// does not start a PES unit or the stream type carries no optional header.
func parsePESTimestamps(payload []byte) (pts, dts *ClockReference) {
	if len(payload) < 9 || !isPESPayload(payload) {
		return nil, nil
	}

	streamID := payload[3]

	// Stream IDs without an optional PES header:
	// padding_stream (0xBE), private_stream_2 (0xBF),
	// ECM (0xF0), EMM (0xF1), program_stream_directory (0xFF),
	// DSMCC (0xF2), ITU-T Rec. H.222.1 type E (0xF8)
	if streamID == 0xBE || streamID == 0xBF ||
		streamID == 0xF0 || streamID == 0xF1 ||
		streamID == 0xF2 || streamID == 0xF8 || streamID == 0xFF {
		return nil, nil
	}

	// payload[7]: PTS_DTS_indicator(2) + ESCR(1) + ES_rate(1) + DSM_trick(1)
	// + additional_copy(1) + CRC(1) + extension(1)
	switch (payload[7] >> 6) & 0x03 {
	case 2: // PTS only
		if len(payload) >= 14 {
			pts = parsePTSOrDTS(payload[9:14])
		}
	case 3: // PTS + DTS
		if len(payload) >= 19 {
			pts = parsePTSOrDTS(payload[9:14])
			dts = parsePTSOrDTS(payload[14:19])
		}
	}
	return pts, dts
}

// parsePTSOrDTS extracts a 33-bit timestamp from 5 PES timestamp bytes.
func parsePTSOrDTS(bs []byte) *ClockReference {
	if len(bs) < 5 {
		return nil
	}
	base := int64(bs[0]>>1&0x07)<<30 |
		int64(bs[1])<<22 |
		int64(bs[2]>>1&0x7F)<<15 |
		int64(bs[3])<<7 |
		int64(bs[4]>>1&0x7F)
	return &ClockReference{Base: base}
}
