package submission

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/sceneforecast/prediction"
)

func samplePreds(t *testing.T, n int) []*prediction.Prediction {
	t.Helper()
	out := make([]*prediction.Prediction, n)
	for i := range out {
		tr := prediction.Trajectory{{float64(i), 1}, {float64(i), 2}, {float64(i), 3}}
		p, err := prediction.New("inst"+string(rune('a'+i)), "samp", []prediction.Trajectory{tr}, []float64{1})
		require.NoError(t, err)
		out[i] = p
	}
	return out
}

func TestWriteReadAllCompressions(t *testing.T) {
	preds := samplePreds(t, 4)
	for _, c := range []Compression{None, Gzip, Zstd} {
		t.Run(c.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out", "submission"+c.Extension())
			require.NoError(t, Write(path, preds, c))

			got, err := Read(path)
			require.NoError(t, err)
			require.Len(t, got, len(preds))
			for i := range preds {
				assert.True(t, preds[i].Equal(got[i]), "record %d differs", i)
			}
		})
	}
}

func TestWriteIsWorldReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "submission.json")
	require.NoError(t, Write(path, samplePreds(t, 1), None))
	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), fi.Mode().Perm())
}

func TestCompressedIsSmallerThanPlain(t *testing.T) {
	preds := samplePreds(t, 20)
	dir := t.TempDir()
	plain := filepath.Join(dir, "s.json")
	gz := filepath.Join(dir, "s.json.gz")
	require.NoError(t, Write(plain, preds, None))
	require.NoError(t, Write(gz, preds, Gzip))

	pi, err := os.Stat(plain)
	require.NoError(t, err)
	gi, err := os.Stat(gz)
	require.NoError(t, err)
	assert.Less(t, gi.Size(), pi.Size())
}

func TestDecodeReportsBadRecord(t *testing.T) {
	doc := `[
	 {"instance":"a","sample":"s","prediction":[[[0,0]]],"probabilities":[1]},
	 {"instance":7,"sample":"s","prediction":[[[0,0]]],"probabilities":[1]}
	]`
	_, err := Decode(strings.NewReader(doc))
	require.Error(t, err)
	assert.True(t, errors.Is(err, prediction.ErrInstanceNotString))
	assert.Contains(t, err.Error(), "record 1")
}

func TestEncodeEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestCompressionParsing(t *testing.T) {
	c, err := ParseCompression("GZ")
	require.NoError(t, err)
	assert.Equal(t, Gzip, c)

	_, err = ParseCompression("lz4")
	require.ErrorIs(t, err, ErrUnknownFormat)

	c, err = CompressionFromPath("/tmp/x.json.zst")
	require.NoError(t, err)
	assert.Equal(t, Zstd, c)

	_, err = CompressionFromPath("/tmp/x.csv")
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestWithExtension(t *testing.T) {
	tests := []struct {
		path string
		c    Compression
		want string
	}{
		{"out/x.json.gz", None, "out/x.json"},
		{"out/x.json.zst", Gzip, "out/x.json.gz"},
		{"out/x.JSON.ZSTD", None, "out/x.json"},
		{"out/x.json", Zstd, "out/x.json.zst"},
		{"out/x.gz", None, "out/x.json"},
		{"out/x", Gzip, "out/x.json.gz"},
		{"out/run.v2", None, "out/run.v2.json"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WithExtension(tt.path, tt.c), tt.path)
	}
}

func TestValidateDuplicates(t *testing.T) {
	preds := samplePreds(t, 2)
	require.NoError(t, Validate(preds))

	preds = append(preds, preds[0])
	require.ErrorIs(t, Validate(preds), ErrDuplicate)
}

func TestValidateNonFinite(t *testing.T) {
	preds := samplePreds(t, 2)
	preds = append(preds, &prediction.Prediction{
		Instance:      "instz",
		Sample:        "samp",
		Trajectories:  []prediction.Trajectory{{{0, 0}}},
		Probabilities: []float64{math.NaN()},
	})
	err := Validate(preds)
	require.ErrorIs(t, err, prediction.ErrNonFinite)
	assert.Contains(t, err.Error(), "record 2")
}
