package output

import (
	"encoding/binary"
	"fmt"
	"math"
)

// halfBits rounds f to the nearest IEEE 754 binary16 value. Magnitudes past
// the half range become infinities and NaN stays NaN.
func halfBits(f float32) uint16 {
	b := math.Float32bits(f)
	sign := uint16(b>>16) & 0x8000
	exp := int(b>>23) & 0xff
	mant := b & 0x7fffff

	if exp == 0xff {
		if mant != 0 {
			return sign | 0x7e00
		}
		return sign | 0x7c00
	}
	exp += 15 - 127
	switch {
	case exp >= 0x1f:
		return sign | 0x7c00
	case exp <= 0:
		if exp < -10 {
			return sign
		}
		full := mant | 0x800000
		shift := uint(14 - exp)
		h := full >> shift
		if full>>(shift-1)&1 != 0 {
			h++
		}
		return sign | uint16(h)
	}
	h := uint32(exp)<<10 | mant>>13
	if mant&0x1000 != 0 {
		// A carry out of the mantissa bumps the exponent, up to infinity.
		h++
	}
	return sign | uint16(h)
}

// halfValue widens a binary16 value.
func halfValue(h uint16) float32 {
	sign := uint32(h&0x8000) << 16
	exp := uint32(h>>10) & 0x1f
	mant := uint32(h & 0x3ff)
	switch exp {
	case 0:
		v := float32(mant) / (1 << 24)
		if sign != 0 {
			v = -v
		}
		return v
	case 0x1f:
		return math.Float32frombits(sign | 0x7f800000 | mant<<13)
	}
	return math.Float32frombits(sign | (exp+127-15)<<23 | mant<<13)
}

// halfHeaderLen is frame(4) time(8) meqn(2) mx(4).
const halfHeaderLen = 18

// EncodeHalf packs a frame as a little-endian binary message: frame index
// uint32, time float64, meqn uint16, mx uint32, then meqn*mx binary16 values
// in state order. It halves the bandwidth of a float32 stream.
func EncodeHalf(f Frame) []byte {
	buf := make([]byte, 0, halfHeaderLen+2*len(f.Q))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(f.Index))
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(f.Time))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(f.Grid.Meqn))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(f.Grid.Mx))
	for _, v := range f.Q {
		buf = binary.LittleEndian.AppendUint16(buf, halfBits(v))
	}
	return buf
}

// DecodeHalf reverses EncodeHalf. The returned frame carries only Meqn and
// Mx of its grid.
func DecodeHalf(data []byte) (Frame, error) {
	var f Frame
	if len(data) < halfHeaderLen {
		return f, fmt.Errorf("half frame: %d bytes, header needs %d", len(data), halfHeaderLen)
	}
	f.Index = int(binary.LittleEndian.Uint32(data))
	f.Time = math.Float64frombits(binary.LittleEndian.Uint64(data[4:]))
	f.Grid.Meqn = int(binary.LittleEndian.Uint16(data[12:]))
	f.Grid.Mx = int(binary.LittleEndian.Uint32(data[14:]))
	body := data[halfHeaderLen:]
	if n := f.Grid.Meqn * f.Grid.Mx; len(body) != 2*n {
		return f, fmt.Errorf("half frame: %d payload bytes, want %d", len(body), 2*n)
	}
	f.Q = make([]float32, len(body)/2)
	for i := range f.Q {
		f.Q[i] = halfValue(binary.LittleEndian.Uint16(body[2*i:]))
	}
	return f, nil
}
