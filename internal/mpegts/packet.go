package mpegts

import "fmt"

func parsePacket(buf []byte) (*Packet, error) {
	if len(buf) != PacketSize {
		return nil, fmt.Errorf("mpegts: packet size %d, expected %d", len(buf), PacketSize)
	}
	if buf[0] != SyncByte {
		return nil, fmt.Errorf("mpegts: invalid sync byte 0x%02X", buf[0])
	}

	p := &Packet{}
	p.Header.TransportErrorIndicator = buf[1]&0x80 != 0
	p.Header.PayloadUnitStartIndicator = buf[1]&0x40 != 0
	p.Header.PID = uint16(buf[1]&0x1F)<<8 | uint16(buf[2])
	p.Header.HasAdaptationField = buf[3]&0x20 != 0
	p.Header.HasPayload = buf[3]&0x10 != 0
	p.Header.ContinuityCounter = buf[3] & 0x0F

	offset := 4

	if p.Header.HasAdaptationField {
		if offset >= PacketSize {
			return p, nil
		}
		afLen := int(buf[offset])
		if afLen > 0 && offset+1 < PacketSize {
			p.Header.DiscontinuityIndicator = buf[offset+1]&0x80 != 0
		}
		end := offset + 1 + afLen
		if end > PacketSize {
			end = PacketSize
		}
		p.AdaptationField = make([]byte, end-offset)
		copy(p.AdaptationField, buf[offset:end])
		offset = end
	}

	if p.Header.HasPayload && offset < PacketSize {
		p.Payload = make([]byte, PacketSize-offset)
		copy(p.Payload, buf[offset:])
	}

	if p.Header.PayloadUnitStartIndicator {
		p.PTS, p.DTS = parsePESTimestamps(p.Payload)
	}

	return p, nil
}
