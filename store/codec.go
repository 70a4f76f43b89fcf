package store

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/TrevorS/mdevents"
)

var errShortRecord = errors.New("store: truncated record")

// Codec encodes one event type. Encode appends e to dst; Decode reads one
// event of dims coordinates from the front of src and returns the rest.
type Codec[E mdevents.Event] interface {
	Encode(dst []byte, e E) []byte
	Decode(src []byte, dims int) (E, []byte, error)
}

// LeanCodec encodes LeanEvents as dims float64 coordinates followed by the
// float32 signal and squared error, little-endian.
type LeanCodec struct{}

func (LeanCodec) Encode(dst []byte, e mdevents.LeanEvent) []byte {
	return appendLean(dst, e.Center(), e.Signal(), e.ErrorSquared())
}

func (LeanCodec) Decode(src []byte, dims int) (mdevents.LeanEvent, []byte, error) {
	center, signal, errSq, rest, err := readLean(src, dims)
	if err != nil {
		return mdevents.LeanEvent{}, nil, err
	}
	return mdevents.NewLeanEvent(signal, errSq, center...), rest, nil
}

// FullCodec encodes FullEvents as a LeanCodec record followed by the run
// index (uint16) and detector id (int32).
type FullCodec struct{}

func (FullCodec) Encode(dst []byte, e mdevents.FullEvent) []byte {
	dst = appendLean(dst, e.Center(), e.Signal(), e.ErrorSquared())
	dst = binary.LittleEndian.AppendUint16(dst, e.RunIndex())
	return binary.LittleEndian.AppendUint32(dst, uint32(e.DetectorID()))
}

func (FullCodec) Decode(src []byte, dims int) (mdevents.FullEvent, []byte, error) {
	center, signal, errSq, rest, err := readLean(src, dims)
	if err != nil {
		return mdevents.FullEvent{}, nil, err
	}
	if len(rest) < 6 {
		return mdevents.FullEvent{}, nil, errShortRecord
	}
	run := binary.LittleEndian.Uint16(rest)
	det := int32(binary.LittleEndian.Uint32(rest[2:]))
	return mdevents.NewFullEvent(signal, errSq, run, det, center...), rest[6:], nil
}

func appendLean(dst []byte, center []float64, signal, errSq float32) []byte {
	for _, x := range center {
		dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(x))
	}
	dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(signal))
	return binary.LittleEndian.AppendUint32(dst, math.Float32bits(errSq))
}

func readLean(src []byte, dims int) (center []float64, signal, errSq float32, rest []byte, err error) {
	if len(src) < dims*8+8 {
		return nil, 0, 0, nil, errShortRecord
	}
	center = make([]float64, dims)
	for d := range center {
		center[d] = math.Float64frombits(binary.LittleEndian.Uint64(src[d*8:]))
	}
	src = src[dims*8:]
	signal = math.Float32frombits(binary.LittleEndian.Uint32(src))
	errSq = math.Float32frombits(binary.LittleEndian.Uint32(src[4:]))
	return center, signal, errSq, src[8:], nil
}
