// Package submission reads and writes submission files: a JSON array of
// serialized prediction records, optionally gzip or zstd compressed for upload.
package submission

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/Noofbiz/sceneforecast/prediction"
)

// Compression selects the container a submission is written in.
type Compression int

const (
	None Compression = iota
	Gzip
	Zstd
)

// ErrUnknownFormat is returned for compression names or file extensions this
// package does not handle.
var ErrUnknownFormat = errors.New("unknown submission format")

// ErrDuplicate is returned by Validate when two records share the same
// instance and sample tokens.
var ErrDuplicate = errors.New("duplicate prediction")

func (c Compression) String() string {
	switch c {
	case None:
		return "none"
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	}
	return fmt.Sprintf("Compression(%d)", int(c))
}

// Extension returns the file suffix conventionally used for c.
func (c Compression) Extension() string {
	switch c {
	case Gzip:
		return ".json.gz"
	case Zstd:
		return ".json.zst"
	}
	return ".json"
}

// ParseCompression accepts "none", "", "gzip", "gz", "zstd" and "zst".
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "json":
		return None, nil
	case "gzip", "gz":
		return Gzip, nil
	case "zstd", "zst":
		return Zstd, nil
	}
	return None, fmt.Errorf("%w: compression %q", ErrUnknownFormat, s)
}

// CompressionFromPath infers the container from the file name.
func CompressionFromPath(path string) (Compression, error) {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(name, ".gz"):
		return Gzip, nil
	case strings.HasSuffix(name, ".zst"), strings.HasSuffix(name, ".zstd"):
		return Zstd, nil
	case strings.HasSuffix(name, ".json"):
		return None, nil
	}
	return None, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// knownSuffixes lists submission suffixes, longest first.
var knownSuffixes = []string{".json.zstd", ".json.zst", ".json.gz", ".zstd", ".zst", ".gz", ".json"}

// WithExtension replaces a known submission suffix of path, in any case, with
// the extension of c. Other suffixes are kept.
func WithExtension(path string, c Compression) string {
	for _, ext := range knownSuffixes {
		if n := len(path) - len(ext); n >= 0 && strings.EqualFold(path[n:], ext) {
			path = path[:n]
			break
		}
	}
	return path + c.Extension()
}

// Encode writes preds as a JSON array.
func Encode(w io.Writer, preds []*prediction.Prediction) error {
	if preds == nil {
		preds = []*prediction.Prediction{}
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(preds); err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}
	return nil
}

// Decode reads a JSON array of records. Every record is validated; the first
// invalid one aborts decoding and its index is reported.
func Decode(r io.Reader) ([]*prediction.Prediction, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode submission: %w", err)
	}
	preds := make([]*prediction.Prediction, 0, len(raw))
	for i, msg := range raw {
		p := new(prediction.Prediction)
		if err := json.Unmarshal(msg, p); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		preds = append(preds, p)
	}
	return preds, nil
}

// Write serializes preds to path using the requested compression. The file is
// written to a temporary sibling and renamed into place once complete.
func Write(path string, preds []*prediction.Prediction, c Compression) (err error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create submission dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".submission-*")
	if err != nil {
		return fmt.Errorf("create submission file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	w, closeFn, err := compressor(bw, c)
	if err != nil {
		return err
	}
	if err = Encode(w, preds); err != nil {
		return err
	}
	if err = closeFn(); err != nil {
		return fmt.Errorf("finish %s stream: %w", c, err)
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("flush submission: %w", err)
	}
	// CreateTemp makes the file 0600.
	if err = tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("chmod submission: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close submission: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename submission: %w", err)
	}
	return nil
}

// Read loads a submission, inferring the compression from the file name.
func Read(path string) ([]*prediction.Prediction, error) {
	c, err := CompressionFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open submission: %w", err)
	}
	defer f.Close()

	r, closeFn, err := decompressor(bufio.NewReader(f), c)
	if err != nil {
		return nil, err
	}
	defer closeFn()
	return Decode(r)
}

func compressor(w io.Writer, c Compression) (io.Writer, func() error, error) {
	switch c {
	case None:
		return w, func() error { return nil }, nil
	case Gzip:
		gw := gzip.NewWriter(w)
		return gw, gw.Close, nil
	case Zstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, nil, fmt.Errorf("create zstd writer: %w", err)
		}
		return zw, zw.Close, nil
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrUnknownFormat, c)
}

func decompressor(r io.Reader, c Compression) (io.Reader, func(), error) {
	switch c {
	case None:
		return r, func() {}, nil
	case Gzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("open gzip stream: %w", err)
		}
		return gr, func() { gr.Close() }, nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("open zstd stream: %w", err)
		}
		return zr, zr.Close, nil
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrUnknownFormat, c)
}

// Validate checks every record and the constraints that single records
// cannot: every (instance, sample) pair must appear at most once and no entry
// may be nil.
func Validate(preds []*prediction.Prediction) error {
	seen := make(map[string]int, len(preds))
	for i, p := range preds {
		if p == nil {
			return fmt.Errorf("record %d: nil prediction", i)
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if j, ok := seen[p.Token()]; ok {
			return fmt.Errorf("%w: records %d and %d both predict %s", ErrDuplicate, j, i, p.Token())
		}
		seen[p.Token()] = i
	}
	return nil
}
