package plan

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"os"
)

// DecodeRoomData decodes a room snapshot from the formats producers send:
// - Raw JSON
// - Zlib-compressed JSON
// - Gzip-compressed JSON
func DecodeRoomData(data []byte) (*Room, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}

	var jsonBytes []byte
	var err error

	switch {
	case IsGzip(data):
		jsonBytes, err = inflate(data, gzip.NewReader, "gzip")
		if err != nil {
			return nil, fmt.Errorf("inflating gzip payload: %w", err)
		}
	case firstNonSpace(data) == '{':
		jsonBytes = data
	default:
		jsonBytes, err = inflate(data, zlib.NewReader, "zlib")
		if err != nil {
			return nil, fmt.Errorf("unknown format: not JSON, gzip, or zlib-compressed")
		}
	}

	if len(bytes.TrimSpace(jsonBytes)) == 0 {
		return nil, fmt.Errorf("decoded JSON payload is empty")
	}

	return ParseRoomJSON(jsonBytes)
}

// IsGzip checks if data starts with the gzip magic bytes
func IsGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

func firstNonSpace(data []byte) byte {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

// inflate reads everything from a decompressor built by open.
func inflate[R io.ReadCloser](data []byte, open func(io.Reader) (R, error), codec string) ([]byte, error) {
	reader, err := open(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating %s reader: %w", codec, err)
	}
	defer func() { _ = reader.Close() }()

	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decompressing %s data: %w", codec, err)
	}
	return out, nil
}

// DecodeRoomFile reads and decodes a room snapshot file in any supported
// encoding.
func DecodeRoomFile(path string) (*Room, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return DecodeRoomData(data)
}
