package queue

import (
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Message attribute names.
const (
	attrContentEncoding = "content-encoding"
	attrEventKind       = "event-kind"

	encodingZstd = "zstd"
)

// compressThreshold is the body size above which messages are compressed.
const compressThreshold = 8 * 1024

var (
	encoderOnce sync.Once
	encoder     *zstd.Encoder
	decoderOnce sync.Once
	decoder     *zstd.Decoder
)

func zstdEncoder() *zstd.Encoder {
	encoderOnce.Do(func() {
		encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	return encoder
}

func zstdDecoder() *zstd.Decoder {
	decoderOnce.Do(func() {
		decoder, _ = zstd.NewReader(nil)
	})
	return decoder
}

// EncodeBody returns the SQS body for raw and the content encoding to
// advertise, or "" when raw is sent as is.
func EncodeBody(raw []byte) (string, string) {
	if len(raw) <= compressThreshold {
		return string(raw), ""
	}
	compressed := zstdEncoder().EncodeAll(raw, nil)
	return base64.StdEncoding.EncodeToString(compressed), encodingZstd
}

// DecodeBody reverses EncodeBody.
func DecodeBody(body, encoding string) ([]byte, error) {
	switch encoding {
	case "":
		return []byte(body), nil
	case encodingZstd:
		compressed, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return nil, fmt.Errorf("queue: invalid base64 body: %w", err)
		}
		raw, err := zstdDecoder().DecodeAll(compressed, nil)
		if err != nil {
			return nil, fmt.Errorf("queue: invalid zstd body: %w", err)
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("queue: unsupported content encoding %q", encoding)
	}
}
