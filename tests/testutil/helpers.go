// Package testutil provides shared test fixtures for package-level tests.
package testutil

import (
	"testing"
	"time"
)

// GenerateTestAudio generates a silent WAV clip of the given duration
// (16kHz mono 16-bit PCM), for tests that exercise WAV decoding and
// playback without depending on a real TTS engine's output.
func GenerateTestAudio(t *testing.T, duration time.Duration) []byte {
	sampleRate := 16000
	channels := 1
	bitsPerSample := 16

	numSamples := int(duration.Seconds() * float64(sampleRate))
	dataSize := numSamples * channels * (bitsPerSample / 8)

	header := []byte{
		0x52, 0x49, 0x46, 0x46, // "RIFF"
		0x00, 0x00, 0x00, 0x00, // File size (placeholder)
		0x57, 0x41, 0x56, 0x45, // "WAVE"
		0x66, 0x6D, 0x74, 0x20, // "fmt "
		0x10, 0x00, 0x00, 0x00, // Chunk size
		0x01, 0x00, // Audio format (PCM)
		byte(channels), 0x00, // Channels
		0x80, 0x3E, 0x00, 0x00, // Sample rate (16000)
		0x00, 0x7D, 0x00, 0x00, // Byte rate
		0x02, 0x00, // Block align
		byte(bitsPerSample), 0x00, // Bits per sample
		0x64, 0x61, 0x74, 0x61, // "data"
		0x00, 0x00, 0x00, 0x00, // Data size (placeholder)
	}

	fileSize := uint32(len(header) + dataSize - 8)
	header[4] = byte(fileSize)
	header[5] = byte(fileSize >> 8)
	header[6] = byte(fileSize >> 16)
	header[7] = byte(fileSize >> 24)

	header[len(header)-4] = byte(dataSize)
	header[len(header)-3] = byte(dataSize >> 8)
	header[len(header)-2] = byte(dataSize >> 16)
	header[len(header)-1] = byte(dataSize >> 24)

	audio := make([]byte, len(header)+dataSize)
	copy(audio, header)

	return audio
}
