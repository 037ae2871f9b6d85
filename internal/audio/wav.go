package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

const (
	formatPCM        = 1
	defaultRate      = 16000
	pcm16Bits        = 16
	riffHeaderLength = 12
)

var (
	ErrNotWAV       = errors.New("audio: not a RIFF/WAVE stream")
	ErrNoFormat     = errors.New("audio: missing fmt chunk")
	ErrInvalidRate  = errors.New("audio: invalid byte rate")
	ErrTruncatedWAV = errors.New("audio: truncated header")
)

// Header describes the parts of a WAV container the player needs.
type Header struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataSize      uint32
}

// Duration is the playable length of the data chunk.
func (h Header) Duration() time.Duration {
	if h.ByteRate == 0 {
		return 0
	}
	return time.Duration(uint64(h.DataSize) * uint64(time.Second) / uint64(h.ByteRate))
}

// wavPrelude is the canonical 44-byte header for mono PCM16LE.
type wavPrelude struct {
	RIFF          [4]byte
	ChunkSize     uint32
	WAVE          [4]byte
	Fmt           [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Data          [4]byte
	DataSize      uint32
}

// EncodeWAVPCM16LE wraps raw PCM16LE mono audio bytes in a WAV container.
func EncodeWAVPCM16LE(pcm []byte, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	if err := WriteWAVPCM16LETo(&buf, pcm, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWAVPCM16LETo writes raw PCM16LE mono audio bytes to out as a WAV stream.
func WriteWAVPCM16LETo(out io.Writer, pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = defaultRate
	}
	const channels = 1
	blockAlign := uint16(channels * pcm16Bits / 8)
	p := wavPrelude{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + uint32(len(pcm)),
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   formatPCM,
		Channels:      channels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(blockAlign),
		BlockAlign:    blockAlign,
		BitsPerSample: pcm16Bits,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(len(pcm)),
	}
	if err := binary.Write(out, binary.LittleEndian, p); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	if _, err := out.Write(pcm); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}

// ReadHeader walks the RIFF chunks up to the start of the data chunk.
// Chunks other than fmt and data are skipped. On success r is positioned
// at the first sample.
func ReadHeader(r io.Reader) (Header, error) {
	var riff [riffHeaderLength]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return Header{}, ErrTruncatedWAV
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return Header{}, ErrNotWAV
	}

	var (
		h       Header
		haveFmt bool
		chunk   [8]byte
	)
	for {
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return Header{}, ErrTruncatedWAV
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			if size < 16 {
				return Header{}, ErrNoFormat
			}
			var f [16]byte
			if _, err := io.ReadFull(r, f[:]); err != nil {
				return Header{}, ErrTruncatedWAV
			}
			h.AudioFormat = binary.LittleEndian.Uint16(f[0:2])
			h.Channels = binary.LittleEndian.Uint16(f[2:4])
			h.SampleRate = binary.LittleEndian.Uint32(f[4:8])
			h.ByteRate = binary.LittleEndian.Uint32(f[8:12])
			h.BlockAlign = binary.LittleEndian.Uint16(f[12:14])
			h.BitsPerSample = binary.LittleEndian.Uint16(f[14:16])
			if err := skip(r, int64(size-16)+int64(size%2)); err != nil {
				return Header{}, err
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return Header{}, ErrNoFormat
			}
			if h.ByteRate == 0 {
				return Header{}, ErrInvalidRate
			}
			h.DataSize = size
			return h, nil
		default:
			// chunks are word aligned
			if err := skip(r, int64(size)+int64(size%2)); err != nil {
				return Header{}, err
			}
		}
	}
}

// ParseDuration reads the header of a WAV clip and returns its length.
func ParseDuration(clip []byte) (time.Duration, error) {
	h, err := ReadHeader(bytes.NewReader(clip))
	if err != nil {
		return 0, err
	}
	// servers sometimes write a placeholder size for streamed output
	avail := uint32(0)
	if off := len(clip) - bytes.Index(clip, []byte("data")) - 8; off > 0 {
		avail = uint32(off)
	}
	if h.DataSize == 0 || h.DataSize > avail {
		h.DataSize = avail
	}
	return h.Duration(), nil
}

// Tone synthesizes a PCM16LE mono sine wave.
func Tone(freqHz float64, d time.Duration, sampleRate int) []byte {
	if sampleRate <= 0 {
		sampleRate = defaultRate
	}
	n := int(int64(d) * int64(sampleRate) / int64(time.Second))
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := 0.3 * math.Sin(2*math.Pi*freqHz*float64(i)/float64(sampleRate))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v*math.MaxInt16)))
	}
	return pcm
}

func skip(r io.Reader, n int64) error {
	if n <= 0 {
		return nil
	}
	if _, err := io.CopyN(io.Discard, r, n); err != nil {
		return ErrTruncatedWAV
	}
	return nil
}
