package datasets

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var requiredColumns = []string{"instance_token", "sample_token", "scene_token", "timestamp", "x", "y", "yaw"}

// AnnotationDataset lazily loads annotation rows from CSV files matching a
// pattern. Only the row counts are read up front; rows are parsed when asked
// for.
type AnnotationDataset struct {
	// Pattern used to find CSV files (e.g., "data/annotations/*.csv")
	Pattern string

	// List of CSV file paths matching the pattern
	csvPaths []string

	// Column indices, one map per file since column order may differ
	colIndex []map[string]int

	// Cumulative counts for fast index mapping
	cumCounts []int

	// Total number of rows across all files
	totalRows int
}

// NewAnnotationDataset creates a dataset over the CSV files matching pattern.
func NewAnnotationDataset(pattern string) (*AnnotationDataset, error) {
	csvPaths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to glob pattern %s: %w", pattern, err)
	}
	if len(csvPaths) == 0 {
		return nil, fmt.Errorf("no CSV files found matching pattern: %s", pattern)
	}
	sort.Strings(csvPaths)

	ds := &AnnotationDataset{
		Pattern:  pattern,
		csvPaths: csvPaths,
	}

	if err := ds.initializeColumns(); err != nil {
		return nil, err
	}
	if err := ds.buildIndex(); err != nil {
		return nil, err
	}
	return ds, nil
}

// initializeColumns reads each header to determine column indices
func (d *AnnotationDataset) initializeColumns() error {
	d.colIndex = make([]map[string]int, len(d.csvPaths))
	for i, path := range d.csvPaths {
		idx, err := readHeader(path)
		if err != nil {
			return err
		}
		for _, col := range requiredColumns {
			if _, ok := idx[col]; !ok {
				return fmt.Errorf("required column %q not found in %s", col, path)
			}
		}
		d.colIndex[i] = idx
	}
	return nil
}

func readHeader(path string) (map[string]int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV %s: %w", path, err)
	}
	defer file.Close()

	header, err := csv.NewReader(file).Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.TrimSpace(strings.ToLower(col))] = i
	}
	return idx, nil
}

// buildIndex counts rows in all files and builds cumulative counts
func (d *AnnotationDataset) buildIndex() error {
	d.cumCounts = make([]int, len(d.csvPaths)+1)
	for i, path := range d.csvPaths {
		count, err := countCSVRows(path)
		if err != nil {
			return fmt.Errorf("failed to count rows in %s: %w", path, err)
		}
		d.cumCounts[i+1] = d.cumCounts[i] + count
	}
	d.totalRows = d.cumCounts[len(d.csvPaths)]
	return nil
}

// Len returns the total number of annotation rows across all CSV files
func (d *AnnotationDataset) Len() int {
	return d.totalRows
}

// Files returns the CSV paths backing the dataset.
func (d *AnnotationDataset) Files() []string {
	return append([]string(nil), d.csvPaths...)
}

// mapGlobalIndex maps a global index to (file index, row index within file)
func (d *AnnotationDataset) mapGlobalIndex(globalIdx int) (fileIdx, localIdx int) {
	i := sort.Search(len(d.csvPaths), func(i int) bool { return globalIdx < d.cumCounts[i+1] })
	if i == len(d.csvPaths) {
		i = len(d.csvPaths) - 1
	}
	return i, globalIdx - d.cumCounts[i]
}

// Example reads a single annotation by global index
func (d *AnnotationDataset) Example(idx int) (Annotation, error) {
	if idx < 0 || idx >= d.totalRows {
		return Annotation{}, fmt.Errorf("index %d out of range [0, %d)", idx, d.totalRows)
	}
	out, err := d.Batch([]int{idx})
	if err != nil {
		return Annotation{}, err
	}
	return out[0], nil
}

// Batch reads multiple annotations by their indices. Indices are grouped by
// file so each file is scanned once.
func (d *AnnotationDataset) Batch(indices []int) ([]Annotation, error) {
	out := make([]Annotation, len(indices))

	type pos struct{ localIdx, batchPos int }
	fileGroups := make(map[int][]pos)
	for batchPos, idx := range indices {
		if idx < 0 || idx >= d.totalRows {
			return nil, fmt.Errorf("index %d out of range [0, %d)", idx, d.totalRows)
		}
		fileIdx, localIdx := d.mapGlobalIndex(idx)
		fileGroups[fileIdx] = append(fileGroups[fileIdx], pos{localIdx, batchPos})
	}

	for fileIdx, group := range fileGroups {
		want := make(map[int][]int, len(group))
		for _, p := range group {
			want[p.localIdx] = append(want[p.localIdx], p.batchPos)
		}
		err := d.scanFile(fileIdx, func(rowIdx int, a Annotation) bool {
			for _, bp := range want[rowIdx] {
				out[bp] = a
			}
			delete(want, rowIdx)
			return len(want) > 0
		}, func(rowIdx int) bool {
			_, ok := want[rowIdx]
			return ok
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// All reads every row of every file, in file order.
func (d *AnnotationDataset) All() ([]Annotation, error) {
	out := make([]Annotation, 0, d.totalRows)
	for fileIdx := range d.csvPaths {
		err := d.scanFile(fileIdx, func(_ int, a Annotation) bool {
			out = append(out, a)
			return true
		}, nil)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// scanFile walks the rows of one file. parse filters which rows are decoded
// (nil decodes all); visit returns false to stop early.
func (d *AnnotationDataset) scanFile(fileIdx int, visit func(rowIdx int, a Annotation) bool, parse func(rowIdx int) bool) error {
	path := d.csvPaths[fileIdx]
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open CSV: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.ReuseRecord = true

	// Skip header
	if _, err := reader.Read(); err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}

	col := d.colIndex[fileIdx]
	for rowIdx := 0; ; rowIdx++ {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read row %d of %s: %w", rowIdx, path, err)
		}
		if parse != nil && !parse(rowIdx) {
			continue
		}
		a, err := parseAnnotation(record, col)
		if err != nil {
			return fmt.Errorf("row %d of %s: %w", rowIdx, path, err)
		}
		if a.Token == "" {
			a.Token = fmt.Sprintf("%s_%s", a.Instance, a.Sample)
		}
		if !visit(rowIdx, a) {
			return nil
		}
	}
}

func parseAnnotation(record []string, col map[string]int) (Annotation, error) {
	get := func(name string) string {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var a Annotation
	var err error
	a.Token = get("token")
	a.Instance = get("instance_token")
	a.Sample = get("sample_token")
	a.Scene = get("scene_token")
	a.Category = get("category")
	if a.Instance == "" || a.Sample == "" {
		return a, fmt.Errorf("instance_token and sample_token must be set")
	}
	if a.Timestamp, err = parseInt64(get("timestamp")); err != nil {
		return a, fmt.Errorf("failed to parse timestamp: %w", err)
	}
	if a.X, err = parseFloat64(get("x")); err != nil {
		return a, fmt.Errorf("failed to parse x: %w", err)
	}
	if a.Y, err = parseFloat64(get("y")); err != nil {
		return a, fmt.Errorf("failed to parse y: %w", err)
	}
	if a.Yaw, err = parseFloat64(get("yaw")); err != nil {
		return a, fmt.Errorf("failed to parse yaw: %w", err)
	}
	if a.Width, err = parseOptionalFloat64(get("width")); err != nil {
		return a, fmt.Errorf("failed to parse width: %w", err)
	}
	if a.Length, err = parseOptionalFloat64(get("length")); err != nil {
		return a, fmt.Errorf("failed to parse length: %w", err)
	}
	return a, nil
}

// LoadAnnotations reads every annotation matching pattern.
func LoadAnnotations(pattern string) ([]Annotation, error) {
	ds, err := NewAnnotationDataset(pattern)
	if err != nil {
		return nil, err
	}
	return ds.All()
}
