// Package audio handles WAV framing, final container encoding, and output
// metadata for the conversion pipeline.
package audio

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"
)

// HeaderLen is the size of the canonical RIFF/WAVE header this package
// writes: RIFF descriptor, a 16-byte fmt chunk, and the data chunk header.
const HeaderLen = 44

// Format describes a PCM stream. The pipeline works in 16-bit mono
// throughout; Channels and BitsPerSample exist so decoded headers can be
// validated rather than assumed.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// Mono16 returns the pipeline-native format at the given sample rate.
func Mono16(sampleRate int) Format {
	return Format{SampleRate: sampleRate, Channels: 1, BitsPerSample: 16}
}

// BytesPerSecond returns the PCM byte rate.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BitsPerSample / 8
}

// blockAlign returns bytes per sample frame.
func (f Format) blockAlign() int {
	return f.Channels * f.BitsPerSample / 8
}

// Samples returns the number of sample frames in a PCM payload of pcmLen bytes.
func (f Format) Samples(pcmLen int) int {
	ba := f.blockAlign()
	if ba == 0 {
		return 0
	}
	return pcmLen / ba
}

// Duration returns the play time of a PCM payload of pcmLen bytes.
func (f Format) Duration(pcmLen int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(pcmLen) * time.Second / time.Duration(bps)
}

// EncodeHeader builds a canonical 44-byte header declaring dataLen payload
// bytes. dataLen may be zero for a placeholder header that is rewritten at
// finalize.
func EncodeHeader(f Format, dataLen uint32) []byte {
	h := make([]byte, HeaderLen)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], 36+dataLen)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(h[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(f.BytesPerSecond()))
	binary.LittleEndian.PutUint16(h[32:34], uint16(f.blockAlign()))
	binary.LittleEndian.PutUint16(h[34:36], uint16(f.BitsPerSample))
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], dataLen)
	return h
}

// WrapPCM frames a PCM payload as a self-contained WAV byte slice.
func WrapPCM(f Format, pcm []byte) []byte {
	out := make([]byte, 0, HeaderLen+len(pcm))
	out = append(out, EncodeHeader(f, uint32(len(pcm)))...)
	return append(out, pcm...)
}

// ExtractPCM parses a WAV frame and returns its PCM payload and format.
// Chunks other than fmt and data (LIST, fact, ...) are skipped, so frames
// from any well-formed encoder are accepted.
func ExtractPCM(wav []byte) ([]byte, Format, error) {
	var f Format
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, f, fmt.Errorf("not a RIFF/WAVE stream")
	}

	var data []byte
	haveFmt := false
	pos := 12
	for pos+8 <= len(wav) {
		id := string(wav[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(wav[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(wav) {
			size = len(wav) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, f, fmt.Errorf("fmt chunk too short: %d bytes", size)
			}
			f.Channels = int(binary.LittleEndian.Uint16(wav[body+2 : body+4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(wav[body+4 : body+8]))
			f.BitsPerSample = int(binary.LittleEndian.Uint16(wav[body+14 : body+16]))
			haveFmt = true
		case "data":
			data = wav[body : body+size]
		}
		// Chunks are word-aligned.
		pos = body + size
		if size%2 == 1 {
			pos++
		}
	}

	if !haveFmt {
		return nil, f, fmt.Errorf("missing fmt chunk")
	}
	if data == nil {
		return nil, f, fmt.Errorf("missing data chunk")
	}
	return data, f, nil
}

// Silence returns a PCM payload of zeros lasting d at the given format,
// rounded down to a whole sample frame.
func Silence(f Format, d time.Duration) []byte {
	n := int(int64(f.BytesPerSecond()) * int64(d) / int64(time.Second))
	n -= n % f.blockAlign()
	if n <= 0 {
		n = f.blockAlign()
	}
	return make([]byte, n)
}

// RewriteSizes fixes the RIFF size (bytes 4-7) and data chunk size (bytes
// 40-43) of a canonical-header WAV file to match its on-disk length. Called
// at finalize after streaming appends.
func RewriteSizes(path string) error {
	fh, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open wav for header rewrite: %w", err)
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return fmt.Errorf("stat wav: %w", err)
	}
	size := info.Size()
	if size < HeaderLen {
		return fmt.Errorf("wav file shorter than header: %d bytes", size)
	}

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(size-8))
	if _, err := fh.WriteAt(buf[:], 4); err != nil {
		return fmt.Errorf("rewrite riff size: %w", err)
	}
	binary.LittleEndian.PutUint32(buf[:], uint32(size-HeaderLen))
	if _, err := fh.WriteAt(buf[:], 40); err != nil {
		return fmt.Errorf("rewrite data size: %w", err)
	}
	return nil
}
