// Package mpegts implements transport stream packet parsing for offline
// file analysis. It recovers packet framing from arbitrary byte offsets,
// exposes header fields relevant to content fingerprinting, and extracts
// PES presentation timestamps from payload-unit-start packets.
package mpegts

// PacketSize is the fixed size of a transport stream packet in bytes.
const PacketSize = 188

// SyncByte is the marker every correctly framed packet starts with.
const SyncByte = 0x47

// Packet is a parsed 188-byte MPEG-TS transport stream packet together
// with its absolute byte offset in the source.
type Packet struct {
	Header          PacketHeader
	AdaptationField []byte
	Payload         []byte

	// Offset is the byte position of the packet's sync byte in the source.
	Offset int64

	// PTS and DTS are set only when the packet starts a PES unit whose
	// optional header carries timestamps. Nil otherwise.
	PTS *ClockReference
	DTS *ClockReference
}

// PacketHeader contains the parsed header fields of a transport stream packet.
type PacketHeader struct {
	PID                       uint16
	ContinuityCounter         uint8
	HasAdaptationField        bool
	HasPayload                bool
	PayloadUnitStartIndicator bool
	TransportErrorIndicator   bool
	DiscontinuityIndicator    bool
}

// ClockReference holds a 33-bit MPEG-TS timestamp base value (90 kHz clock).
type ClockReference struct {
	Base int64
}
