package store

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TrevorS/mdevents"
)

func TestFullCodec_PreservesBitPatterns(t *testing.T) {
	e := mdevents.NewFullEvent(float32(math.Pi), math.SmallestNonzeroFloat32, math.MaxUint16, math.MinInt32,
		-0.0, math.Nextafter(1, 2), -math.MaxFloat64)

	buf := FullCodec{}.Encode([]byte{0xAA}, e)
	assert.Equal(t, byte(0xAA), buf[0], "Encode appends")
	assert.Len(t, buf, 1+3*8+8+6)

	got, rest, err := FullCodec{}.Decode(buf[1:], 3)
	require.NoError(t, err)
	assert.Empty(t, rest)
	for d, x := range e.Center() {
		assert.Equal(t, math.Float64bits(x), math.Float64bits(got.Center()[d]))
	}
	assert.Equal(t, e.Signal(), got.Signal())
	assert.Equal(t, e.ErrorSquared(), got.ErrorSquared())
	assert.Equal(t, uint16(math.MaxUint16), got.RunIndex())
	assert.Equal(t, int32(math.MinInt32), got.DetectorID())
}

func TestCodec_ConsecutiveRecords(t *testing.T) {
	var buf []byte
	for i := 0; i < 3; i++ {
		buf = LeanCodec{}.Encode(buf, mdevents.NewLeanEvent(float32(i), 0, float64(i), float64(-i)))
	}

	for i := 0; i < 3; i++ {
		var e mdevents.LeanEvent
		var err error
		e, buf, err = LeanCodec{}.Decode(buf, 2)
		require.NoError(t, err)
		assert.Equal(t, []float64{float64(i), float64(-i)}, e.Center())
		assert.Equal(t, float32(i), e.Signal())
	}
	assert.Empty(t, buf)
}

func TestCodec_Truncated(t *testing.T) {
	full := FullCodec{}.Encode(nil, mdevents.NewFullEvent(1, 1, 1, 1, 0.5, 0.5))
	for _, n := range []int{0, 8, len(full) - 1} {
		_, _, err := FullCodec{}.Decode(full[:n], 2)
		assert.ErrorIs(t, err, errShortRecord, "length %d", n)
	}

	lean := LeanCodec{}.Encode(nil, mdevents.NewLeanEvent(1, 1, 0.5))
	_, _, err := LeanCodec{}.Decode(lean[:len(lean)-2], 1)
	assert.ErrorIs(t, err, errShortRecord)
}

func TestDecodeBox_Truncated(t *testing.T) {
	rec := mdevents.BoxRecord[mdevents.LeanEvent]{
		ID:      4,
		Depth:   1,
		Extents: []mdevents.Extent{{Min: 0, Max: 1}},
		Events:  []mdevents.LeanEvent{mdevents.NewLeanEvent(1, 1, 0.5), mdevents.NewLeanEvent(1, 1, 0.25)},
	}
	buf := encodeBox(rec, Codec[mdevents.LeanEvent](LeanCodec{}))

	got, err := decodeBox(buf, 1, Codec[mdevents.LeanEvent](LeanCodec{}))
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Len(t, got.Events, 2)

	_, err = decodeBox(buf[:len(buf)-3], 1, Codec[mdevents.LeanEvent](LeanCodec{}))
	assert.ErrorIs(t, err, errShortRecord)
	_, err = decodeBox(buf[:20], 1, Codec[mdevents.LeanEvent](LeanCodec{}))
	assert.ErrorIs(t, err, errShortRecord)
}
