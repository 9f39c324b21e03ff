package translate

import (
	"math"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
)

// ImageChunkSize is the payload carried by one ENCAPSULATED_DATA message.
const ImageChunkSize = 253

// MaxImageSize is the largest frame that fits the packet counter.
const MaxImageSize = ImageChunkSize * math.MaxUint16

// ImageFrame splits an encoded PNG image into the handshake announcing it
// and the ENCAPSULATED_DATA chunks carrying it. The last chunk is zero padded.
func ImageFrame(data []byte, width, height int) (*common.MessageDataTransmissionHandshake, []*common.MessageEncapsulatedData, error) {
	if len(data) == 0 {
		return nil, nil, translationErr("empty image")
	}
	if len(data) > MaxImageSize {
		return nil, nil, translationErr("image of %d bytes exceeds %d", len(data), MaxImageSize)
	}
	if width <= 0 || height <= 0 || width > math.MaxUint16 || height > math.MaxUint16 {
		return nil, nil, translationErr("invalid image size %dx%d", width, height)
	}

	packets := (len(data) + ImageChunkSize - 1) / ImageChunkSize
	hs := &common.MessageDataTransmissionHandshake{
		Type:    common.MAVLINK_DATA_STREAM_IMG_PNG,
		Size:    uint32(len(data)),
		Width:   uint16(width),
		Height:  uint16(height),
		Packets: uint16(packets),
		Payload: ImageChunkSize,
	}

	chunks := make([]*common.MessageEncapsulatedData, packets)
	for i := range packets {
		c := &common.MessageEncapsulatedData{Seqnr: uint16(i)}
		copy(c.Data[:], data[i*ImageChunkSize:])
		chunks[i] = c
	}
	return hs, chunks, nil
}

// AssembleImage reverses ImageFrame. It returns false until every chunk the
// handshake announced is present.
func AssembleImage(hs *common.MessageDataTransmissionHandshake, chunks []*common.MessageEncapsulatedData) ([]byte, bool) {
	if hs == nil || int(hs.Packets) != len(chunks) {
		return nil, false
	}
	buf := make([]byte, int(hs.Packets)*ImageChunkSize)
	if int(hs.Size) > len(buf) {
		return nil, false
	}
	seen := make([]bool, hs.Packets)
	for _, c := range chunks {
		if int(c.Seqnr) >= len(seen) {
			return nil, false
		}
		seen[c.Seqnr] = true
		copy(buf[int(c.Seqnr)*ImageChunkSize:], c.Data[:])
	}
	for _, ok := range seen {
		if !ok {
			return nil, false
		}
	}
	return buf[:hs.Size], true
}
