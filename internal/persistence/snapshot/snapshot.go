package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"skirmish.gg/internal/sim/encounter"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	RunID   string `json:"run_id"`
	Seed    int64  `json:"seed"`
	Digest  string `json:"digest"`
}

// LayoutV1 is a generated arena plus the inputs needed to regenerate it.
type LayoutV1 struct {
	Header Header `json:"header"`

	TemplatesDigest string `json:"templates_digest"`
	TuningDigest    string `json:"tuning_digest"`

	Layout encounter.Layout `json:"layout"`
}

func NewLayoutV1(runID string, l *encounter.Layout, templatesDigest, tuningDigest string) LayoutV1 {
	return LayoutV1{
		Header: Header{
			Version: Version,
			RunID:   runID,
			Seed:    l.Seed,
			Digest:  l.Digest(),
		},
		TemplatesDigest: templatesDigest,
		TuningDigest:    tuningDigest,
		Layout:          *l,
	}
}

func WriteLayout(path string, snap LayoutV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 64*1024)
	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func ReadLayout(path string) (LayoutV1, error) {
	var snap LayoutV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// Recorder writes one snapshot per run under dir.
type Recorder struct {
	Dir             string
	TemplatesDigest string
	TuningDigest    string
}

func (r *Recorder) PathFor(runID string) string {
	return filepath.Join(r.Dir, runID+".layout.zst")
}

func (r *Recorder) RecordLayout(runID string, l *encounter.Layout) error {
	if l == nil {
		return fmt.Errorf("snapshot: no layout for run %s", runID)
	}
	return WriteLayout(r.PathFor(runID), NewLayoutV1(runID, l, r.TemplatesDigest, r.TuningDigest))
}
