package audio

import (
	"bytes"
	"encoding/binary"
	"math"
)

// EncodeWAV renders a captured utterance as a 16-bit PCM mono WAV file,
// for the optional debug-dump path (main's --debug-audio-dir flag).
// Adapted from the teacher's pkg/audio WAV encoder, which built the
// same header from raw PCM16 bytes; here it also does the float32 to
// PCM16 conversion since AudioCapture deals exclusively in float32.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		pcm[2*i], pcm[2*i+1] = int16Bytes(s)
	}

	buf := new(bytes.Buffer)

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(buf, binary.LittleEndian, uint16(2))
	binary.Write(buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

func int16Bytes(sample float32) (byte, byte) {
	clamped := math.Max(-1, math.Min(1, float64(sample)))
	v := int16(clamped * math.MaxInt16)
	return byte(v), byte(v >> 8)
}
