package audio

import "encoding/binary"

// WAVHeaderSize is the fixed RIFF/WAVE header length produced by WrapWAV.
const WAVHeaderSize = 44

// WrapWAV wraps raw 16-bit little-endian mono PCM in a minimal RIFF/WAVE
// container: a 44-byte header with "fmt " and "data" sub-chunks followed by
// the samples unchanged.
func WrapWAV(pcm []byte, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	out := make([]byte, WAVHeaderSize+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(out[20:22], 1)  // PCM format tag
	binary.LittleEndian.PutUint16(out[22:24], channels)
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], bitsPerSample)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[WAVHeaderSize:], pcm)
	return out
}

// WAVSize returns the container size WrapWAV would produce for a PCM byte
// count, without allocating.
func WAVSize(pcmBytes int) int {
	return WAVHeaderSize + pcmBytes
}
