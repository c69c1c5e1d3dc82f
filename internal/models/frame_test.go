package models

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDataPointFormats(t *testing.T) {
	values, err := DecodeDataPoint([]byte(`{"values":[1.5,-1,3]}`))
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, -1, 3}, values)

	values, err = DecodeDataPoint([]byte(" [2, 4] \n"))
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 4}, values)

	values, err = DecodeDataPoint(EncodeDataPoint([]float64{0.25, -1, 1024}))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, -1, 1024}, values)

	_, err = DecodeDataPoint([]byte{1, 2, 3})
	assert.Error(t, err)
	_, err = DecodeDataPoint(nil)
	assert.Error(t, err)
}

func TestDecodeDataPointBinaryStartingWithBrace(t *testing.T) {
	// 0x7b is '{'; the payload is not valid JSON so it is read as float32.
	payload := []byte{'{', 0, 0, 0, '[', 0, 0, 0}
	values, err := DecodeDataPoint(payload)
	require.NoError(t, err)
	assert.Len(t, values, 2)
}

func TestFrameReader(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(EncodeDataPoint([]float64{1, 2, 3}))
	buf.Write(EncodeDataPoint([]float64{4, 5, 6}))
	buf.Write(EncodeDataPoint([]float64{7}))

	r := NewFrameReader(&buf, 3)
	frame, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, frame)
	frame, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 5, 6}, frame)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	r = NewFrameReader(bytes.NewReader(nil), 3)
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}
