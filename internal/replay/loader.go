package replay

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Frame is one recorded snapshot rehydrated from a session bundle.
type Frame struct {
	Tick       uint64
	Playtime   int32
	CapturedAt time.Time
	Payload    json.RawMessage
}

// Loader rehydrates a recorded session for tooling and tests.
type Loader struct {
	frames []Frame
}

// Load reads the frame stream referenced by the bundle's manifest.
func Load(dir string) (*Loader, error) {
	if dir == "" {
		return nil, fmt.Errorf("session directory must be provided")
	}

	raw, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, err
	}

	file, err := os.Open(filepath.Join(dir, manifest.FramesPath))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	stream, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var frames []Frame
	header := make([]byte, 8+8+8+4)
	for {
		if _, err := io.ReadFull(stream, header); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		size := binary.LittleEndian.Uint32(header[24:28])
		payload := make([]byte, size)
		if _, err := io.ReadFull(stream, payload); err != nil {
			return nil, err
		}
		frames = append(frames, Frame{
			Tick:       binary.LittleEndian.Uint64(header[0:8]),
			Playtime:   int32(binary.LittleEndian.Uint64(header[8:16])),
			CapturedAt: time.Unix(0, int64(binary.LittleEndian.Uint64(header[16:24]))).UTC(),
			Payload:    payload,
		})
	}

	return &Loader{frames: frames}, nil
}

// Frames exposes a defensive copy of the recorded snapshots in tick order.
func (l *Loader) Frames() []Frame {
	if l == nil {
		return nil
	}
	out := make([]Frame, len(l.frames))
	copy(out, l.frames)
	return out
}

// Replay invokes the callback for every recorded frame in order.
func (l *Loader) Replay(apply func(Frame) error) error {
	if l == nil {
		return fmt.Errorf("loader not initialised")
	}
	if apply == nil {
		return fmt.Errorf("replay callback must be provided")
	}
	for _, frame := range l.frames {
		if err := apply(frame); err != nil {
			return err
		}
	}
	return nil
}
