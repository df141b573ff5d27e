// Package wav writes mono, 32-bit float PCM recordings, appending to an
// existing file when one is already present so a session's recording
// accumulates every utterance dispatched over its lifetime.
package wav

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

const (
	fmtPCMFloat  = 3 // WAVE_FORMAT_IEEE_FLOAT
	bitsPerFloat = 32
	headerSize   = 44
)

// AppendSamples writes samples (interleaved mono float32) to path. If path
// does not exist, a fresh WAV file is created with a header declaring
// sampleRate and mono, 32-bit float samples. If it already exists and was
// itself written by this function, the samples are appended and the
// header's size fields are corrected in place.
func AppendSamples(path string, sampleRate int, samples []float32) error {
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("wav: stat %q: %w", path, err)
		}
		return createAndWrite(path, sampleRate, samples)
	}
	return appendExisting(path, samples)
}

func createAndWrite(path string, sampleRate int, samples []float32) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("wav: create %q: %w", path, err)
	}
	defer f.Close()

	dataBytes := len(samples) * 4
	if err := writeHeader(f, sampleRate, dataBytes); err != nil {
		return err
	}
	if _, err := f.Seek(headerSize, 0); err != nil {
		return fmt.Errorf("wav: seek past header in %q: %w", path, err)
	}
	if err := writeSamples(f, samples); err != nil {
		return fmt.Errorf("wav: write samples to %q: %w", path, err)
	}
	return nil
}

func appendExisting(path string, samples []float32) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("wav: open %q: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("wav: stat %q: %w", path, err)
	}
	if info.Size() < headerSize {
		return fmt.Errorf("wav: %q is too short to be a valid header", path)
	}

	existingDataBytes := info.Size() - headerSize
	newDataBytes := existingDataBytes + int64(len(samples)*4)

	if err := patchHeader(f, newDataBytes); err != nil {
		return fmt.Errorf("wav: patch header in %q: %w", path, err)
	}
	if _, err := f.Seek(0, 2); err != nil {
		return fmt.Errorf("wav: seek to end of %q: %w", path, err)
	}
	if err := writeSamples(f, samples); err != nil {
		return fmt.Errorf("wav: append samples to %q: %w", path, err)
	}
	return nil
}

// writeHeader writes a canonical 44-byte RIFF/WAVE header for mono, 32-bit
// IEEE float PCM at sampleRate, declaring dataBytes of sample data to
// follow.
func writeHeader(f *os.File, sampleRate int, dataBytes int) error {
	const channels = 1
	byteRate := sampleRate * channels * (bitsPerFloat / 8)
	blockAlign := channels * (bitsPerFloat / 8)

	var hdr [headerSize]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(36+dataBytes))
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], uint16(fmtPCMFloat))
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(hdr[34:36], uint16(bitsPerFloat))
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], uint32(dataBytes))

	_, err := f.WriteAt(hdr[:], 0)
	return err
}

// patchHeader rewrites the RIFF chunk size and data chunk size fields of an
// existing header to reflect a new total data length.
func patchHeader(f *os.File, dataBytes int64) error {
	var riffSize [4]byte
	binary.LittleEndian.PutUint32(riffSize[:], uint32(36+dataBytes))
	if _, err := f.WriteAt(riffSize[:], 4); err != nil {
		return err
	}

	var dataSize [4]byte
	binary.LittleEndian.PutUint32(dataSize[:], uint32(dataBytes))
	_, err := f.WriteAt(dataSize[:], 40)
	return err
}

func writeSamples(f *os.File, samples []float32) error {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(s))
	}
	_, err := f.Write(buf)
	return err
}
