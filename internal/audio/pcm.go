package audio

import "encoding/binary"

// PCM16ToFloat32 converts little-endian signed 16-bit PCM into [-1, 1) floats.
// A trailing odd byte is ignored.
func PCM16ToFloat32(buf []byte) []float32 {
	n := len(buf) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		u := binary.LittleEndian.Uint16(buf[2*i:])
		samples[i] = float32(int16(u)) / 32768.0
	}
	return samples
}

// Float32ToPCM16 is the inverse of PCM16ToFloat32, clamping out-of-range values.
func Float32ToPCM16(samples []float32) []byte {
	buf := make([]byte, len(samples)*2)
	for i, v := range samples {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		s := int32(v * 32768)
		if s > 32767 {
			s = 32767
		}
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(int16(s)))
	}
	return buf
}
