package iqfile

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftl/rfheatmap/core"
	"github.com/ftl/rfheatmap/core/radio"
)

func TestReadFixedPointFormat(t *testing.T) {
	raw := []byte{
		0x00, 0x08, 0x00, 0xF8, // 2048, -2048
		0x00, 0x04, 0x00, 0x00, // 1024, 0
	}
	r := NewReader(bytes.NewReader(raw), false, 0)

	buf := make(core.Block, 4)
	n, err := r.ReadBlock(buf, time.Second)

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, core.Block{complex(1, -1), complex(0.5, 0)}, buf[:n])
}

func TestWriteAndReadCaptureFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "capture.bin")
	samples := core.Block{complex(0.25, -0.5), complex(-1, 1), complex(0, 0.125)}

	w, err := Create(filename)
	require.NoError(t, err)
	require.NoError(t, w.Write(samples))
	assert.Equal(t, 3, w.Count())
	require.NoError(t, w.Close())

	r, err := Open(filename, false, 0)
	require.NoError(t, err)
	defer r.Close()

	buf := make(core.Block, 8)
	n, err := r.ReadBlock(buf, time.Second)
	require.NoError(t, err)
	assert.Equal(t, samples, buf[:n])

	_, err = r.ReadBlock(buf, time.Second)
	assert.True(t, radio.IsFatal(err), "end of file is fatal without loop")
}

func TestWriterClipsToFixedPointRange(t *testing.T) {
	out := new(bytes.Buffer)
	w := NewWriter(out)
	require.NoError(t, w.Write(core.Block{complex(100, -100)}))
	require.NoError(t, w.Close())

	assert.Equal(t, []byte{0xFF, 0x7F, 0x00, 0x80}, out.Bytes())
}

func TestLoopRewindsAtEndOfFile(t *testing.T) {
	raw := []byte{0x00, 0x08, 0x00, 0x00}
	r := NewReader(bytes.NewReader(raw), true, 0)
	buf := make(core.Block, 1)

	n, err := r.ReadBlock(buf, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = r.ReadBlock(buf, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "rewinding reports no data")

	n, err = r.ReadBlock(buf, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, complex64(1), buf[0])
}
