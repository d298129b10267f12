package storage

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/errors"
)

func directories(t *testing.T) map[string]Directory {
	t.Helper()
	fsDir, err := NewFSDirectory(t.TempDir())
	require.NoError(t, err)
	return map[string]Directory{
		"fs":     fsDir,
		"memory": NewMemoryDirectory(),
	}
}

func TestDirectoryContract(t *testing.T) {
	for name, dir := range directories(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, WriteFile(dir, "seg_000001.spdx", []byte("segment bytes")))
			require.NoError(t, WriteFile(dir, "segments.gen", []byte("v1")))

			names, err := dir.List()
			require.NoError(t, err)
			assert.Equal(t, []string{"seg_000001.spdx", "segments.gen"}, names)

			size, err := dir.Size("seg_000001.spdx")
			require.NoError(t, err)
			assert.EqualValues(t, len("segment bytes"), size)

			f, err := dir.Open("seg_000001.spdx")
			require.NoError(t, err)
			buf := make([]byte, 5)
			_, err = f.ReadAt(buf, 8)
			require.NoError(t, err)
			assert.Equal(t, "bytes", string(buf))
			require.NoError(t, f.Close())

			require.NoError(t, WriteFile(dir, "segments.gen", []byte("v2")))
			data, err := ReadFile(dir, "segments.gen")
			require.NoError(t, err)
			assert.Equal(t, "v2", string(data))

			require.NoError(t, dir.Remove("seg_000001.spdx"))
			ok, err := dir.Exists("seg_000001.spdx")
			require.NoError(t, err)
			assert.False(t, ok)
			assert.NoError(t, dir.Remove("seg_000001.spdx"), "removing a missing file is not an error")
		})
	}
}

func TestOpenMissingIsStorageError(t *testing.T) {
	_, err := NewMemoryDirectory().Open("nope")
	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
}

func TestCopyBetweenTiers(t *testing.T) {
	ram := NewMemoryDirectory()
	disk, err := NewFSDirectory(t.TempDir())
	require.NoError(t, err)

	f, err := ram.Create("seg_000002.spdx")
	require.NoError(t, err)
	_, err = io.WriteString(f, "postings")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, Copy(ram, disk, "seg_000002.spdx"))
	data, err := ReadFile(disk, "seg_000002.spdx")
	require.NoError(t, err)
	assert.Equal(t, "postings", string(data))

	names, err := disk.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"seg_000002.spdx"}, names, "no temporary file left behind")
}
