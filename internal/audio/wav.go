package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WavInfo describes a PCM WAV stream
type WavInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	DataBytes     int64
}

// Duration is derived from the data chunk size, never from the file length.
func (w WavInfo) Duration() float64 {
	bytesPerSec := float64(w.SampleRate * w.Channels * w.BitsPerSample / 8)
	if bytesPerSec == 0 {
		return 0
	}
	return float64(w.DataBytes) / bytesPerSec
}

var errNotWav = errors.New("not a RIFF/WAVE file")

// ReadWavInfo reads the fmt chunk of r and seeks to the data chunk.
func ReadWavInfo(r io.ReadSeeker) (WavInfo, error) {
	d := wav.NewDecoder(r)
	if err := d.FwdToPCM(); err != nil {
		return WavInfo{}, fmt.Errorf("read wav: %w", err)
	}
	if d.NumChans == 0 || d.SampleRate == 0 || d.PCMChunk == nil {
		return WavInfo{}, errNotWav
	}
	return WavInfo{
		SampleRate:    int(d.SampleRate),
		Channels:      int(d.NumChans),
		BitsPerSample: int(d.BitDepth),
		DataBytes:     int64(d.PCMSize),
	}, nil
}

// WavDuration measures a WAV file on disk in seconds.
func WavDuration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := ReadWavInfo(f)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return info.Duration(), nil
}

// WritePCM wraps little-endian 16-bit PCM in a WAV container at path.
// A trailing odd byte is dropped.
func WritePCM(path string, pcm []byte, sampleRate, channels int) error {
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}
	return writeSamples(path, samples, sampleRate, channels)
}

// WriteSilence writes sec seconds of 16-bit silence to path.
func WriteSilence(path string, sec float64, sampleRate, channels int) error {
	frames := int(sec * float64(sampleRate))
	if frames <= 0 || channels <= 0 {
		return fmt.Errorf("silence of %vs at %d Hz has no samples", sec, sampleRate)
	}
	return writeSamples(path, make([]int, frames*channels), sampleRate, channels)
}

func writeSamples(path string, samples []int, sampleRate, channels int) error {
	if len(samples) == 0 {
		return errors.New("no samples to write")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalize wav: %w", err)
	}
	return f.Close()
}
