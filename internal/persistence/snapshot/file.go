package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Header is written as a JSON line ahead of the gob body so tools can list
// snapshot files without decoding them.
type Header struct {
	Version   int    `json:"version"`
	Timestamp int64  `json:"timestamp"`
	Digest    string `json:"digest,omitempty"`
	Bubbles   int    `json:"bubbles"`
	Portals   int    `json:"portals"`
	Resources int    `json:"resources"`
}

func WriteSnapshot(path string, snap *Snapshot, digest string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if err := encodeFile(f, snap, digest); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encodeFile(f *os.File, snap *Snapshot, digest string) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(Header{
		Version:   snap.Version,
		Timestamp: snap.Timestamp,
		Digest:    digest,
		Bubbles:   len(snap.Bubbles),
		Portals:   len(snap.Portals),
		Resources: len(snap.Resources),
	})
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (*Snapshot, Header, error) {
	var hdr Header
	f, err := os.Open(path)
	if err != nil {
		return nil, hdr, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, hdr, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return nil, hdr, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &hdr); err != nil {
		return nil, hdr, fmt.Errorf("decode header: %w", err)
	}
	if hdr.Version != Version {
		return nil, hdr, fmt.Errorf("unsupported snapshot version %d", hdr.Version)
	}

	var snap Snapshot
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return nil, hdr, fmt.Errorf("gob decode: %w", err)
	}
	normalize(&snap)
	return &snap, hdr, nil
}

// ReadHeader decodes only the leading header line.
func ReadHeader(path string) (Header, error) {
	var hdr Header
	f, err := os.Open(path)
	if err != nil {
		return hdr, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return hdr, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return hdr, err
	}
	err = json.Unmarshal(line, &hdr)
	return hdr, err
}

// MarshalBinary encodes a snapshot with msgpack for binary presentation frames.
func MarshalBinary(s *Snapshot) ([]byte, error) {
	return msgpack.Marshal(s)
}

func UnmarshalBinary(b []byte) (*Snapshot, error) {
	var s Snapshot
	if err := msgpack.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	normalize(&s)
	return &s, nil
}

// normalize restores empty slices dropped by gob/msgpack.
func normalize(s *Snapshot) {
	n := New(s.Timestamp)
	if s.PendingInputs == nil {
		s.PendingInputs = n.PendingInputs
	}
	if s.Users == nil {
		s.Users = n.Users
	}
	if s.Bubbles == nil {
		s.Bubbles = n.Bubbles
	}
	if s.Portals == nil {
		s.Portals = n.Portals
	}
	if s.Obstacles == nil {
		s.Obstacles = n.Obstacles
	}
	if s.Nodes == nil {
		s.Nodes = n.Nodes
	}
	if s.Resources == nil {
		s.Resources = n.Resources
	}
}
