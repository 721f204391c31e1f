package capture

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/rtsync/internal/errors"
)

const (
	exportBitDepth = 16
	pcmFormat      = 1
	maxInt16       = 32767
)

// WriteWAV encodes v as 16-bit PCM, oldest frame first.
func WriteWAV(w io.WriteSeeker, v View, sampleRate int) error {
	if v.Channels() == 0 {
		return errors.New(errors.NewStd("empty capture view")).
			Component(ComponentCapture).
			Category(errors.CategoryValidation).
			Build()
	}

	frames := v.Frames()
	samples := make([]int, frames*v.Channels())
	for i := range frames {
		for c := range v.Channels() {
			s := min(max(v.Sample(c, i), -1), 1)
			samples[i*v.Channels()+c] = int(s * maxInt16)
		}
	}

	enc := wav.NewEncoder(w, sampleRate, exportBitDepth, v.Channels(), pcmFormat)
	buf := &audio.IntBuffer{
		Data:           samples,
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: v.Channels()},
		SourceBitDepth: exportBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return errors.New(fmt.Errorf("failed to write WAV data: %w", err)).
			Component(ComponentCapture).
			Category(errors.CategoryFileIO).
			Build()
	}
	if err := enc.Close(); err != nil {
		return errors.New(fmt.Errorf("failed to finalize WAV header: %w", err)).
			Component(ComponentCapture).
			Category(errors.CategoryFileIO).
			Build()
	}
	return nil
}

// ExportFile writes the latest view of p to dir as a timestamped WAV file
// and returns its path.
func ExportFile(dir string, p *Publisher, sampleRate int, now time.Time) (string, error) {
	const dirPermissions = 0o750
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return "", errors.New(fmt.Errorf("failed to create export directory: %w", err)).
			Component(ComponentCapture).
			Category(errors.CategoryFileIO).
			Context("operation", "export_capture").
			Build()
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.wav", p.Name(), now.Format("20060102T150405")))
	f, err := os.Create(path)
	if err != nil {
		return "", errors.New(fmt.Errorf("failed to create export file: %w", err)).
			Component(ComponentCapture).
			Category(errors.CategoryFileIO).
			Context("operation", "export_capture").
			Build()
	}

	if err := WriteWAV(f, p.Snapshot(), sampleRate); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", errors.New(fmt.Errorf("failed to close export file: %w", err)).
			Component(ComponentCapture).
			Category(errors.CategoryFileIO).
			Context("operation", "export_capture").
			Build()
	}
	return path, nil
}
