package amq

import (
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v3"
)

// compressionThreshold is the payload size, in bytes, at or above which
// TrySend tries lz4 before handing a message to the transport; smaller
// payloads are framed raw since lz4's own per-block overhead would grow
// them instead of shrinking them.
const compressionThreshold = 256

const (
	frameRaw byte = 0
	frameLZ4 byte = 1
)

// frameEncode prefixes payload with a one-byte tag (plus, when
// compressed, payload's original length) so frameDecode on the
// receiving side can tell raw frames from lz4 ones apart.
func frameEncode(payload []byte) []byte {
	if len(payload) < compressionThreshold {
		out := make([]byte, 0, 1+len(payload))
		out = append(out, frameRaw)
		return append(out, payload...)
	}

	dst := make([]byte, lz4.CompressBlockBound(len(payload)))
	var ht [1 << 16]int
	n, err := lz4.CompressBlock(payload, dst, ht[:])
	if err != nil || n <= 0 || n >= len(payload) {
		out := make([]byte, 0, 1+len(payload))
		out = append(out, frameRaw)
		return append(out, payload...)
	}

	out := make([]byte, 0, 5+n)
	out = append(out, frameLZ4)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	out = append(out, lenBuf[:]...)
	return append(out, dst[:n]...)
}

// frameDecode reverses frameEncode.
func frameDecode(framed []byte) ([]byte, error) {
	if len(framed) == 0 {
		return nil, fmt.Errorf("amq: empty frame")
	}
	switch framed[0] {
	case frameRaw:
		return framed[1:], nil
	case frameLZ4:
		if len(framed) < 5 {
			return nil, fmt.Errorf("amq: truncated lz4 frame")
		}
		origLen := binary.BigEndian.Uint32(framed[1:5])
		dst := make([]byte, origLen)
		n, err := lz4.UncompressBlock(framed[5:], dst)
		if err != nil {
			return nil, fmt.Errorf("amq: lz4 decompress: %w", err)
		}
		return dst[:n], nil
	default:
		return nil, fmt.Errorf("amq: unknown frame tag %d", framed[0])
	}
}
