package models

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

// DecodeDataPoint parses a data point payload. Valid JSON payloads
// ({"values":[...]} or a bare array) are decoded as JSON; anything else is
// read as little-endian float32 samples, the format the acquisition flow
// graph streams.
func DecodeDataPoint(payload []byte) ([]float64, error) {
	if len(payload) == 0 {
		return nil, errors.New("empty payload")
	}

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return decodeFloat32(payload)
	}

	switch trimmed[0] {
	case '{':
		var p DataPointPayload
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal data point: %w", err)
		}
		return p.Values, nil
	case '[':
		var values []float64
		if err := json.Unmarshal(trimmed, &values); err != nil {
			return nil, fmt.Errorf("failed to unmarshal data point: %w", err)
		}
		return values, nil
	}
	return decodeFloat32(payload)
}

func decodeFloat32(payload []byte) ([]float64, error) {
	if len(payload)%4 != 0 {
		return nil, fmt.Errorf("binary payload length %d is not a multiple of 4", len(payload))
	}
	values := make([]float64, len(payload)/4)
	for i := range values {
		bits := binary.LittleEndian.Uint32(payload[4*i:])
		values[i] = float64(math.Float32frombits(bits))
	}
	return values, nil
}

// EncodeDataPoint writes values as little-endian float32 samples
func EncodeDataPoint(values []float64) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(v)))
	}
	return buf
}

// FrameReader reads fixed-size float32 data points from a recorded stream
type FrameReader struct {
	r   io.Reader
	buf []byte
}

// NewFrameReader reads frames of size values each from r
func NewFrameReader(r io.Reader, size int) *FrameReader {
	return &FrameReader{r: r, buf: make([]byte, 4*size)}
}

// Next returns the next frame, or io.EOF when the stream ends on a frame boundary.
// A truncated trailing frame yields io.ErrUnexpectedEOF.
func (fr *FrameReader) Next() ([]float64, error) {
	if _, err := io.ReadFull(fr.r, fr.buf); err != nil {
		return nil, err
	}
	return decodeFloat32(fr.buf)
}
