package storage

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSharedDiskReadWrite(t *testing.T) {
	store := NewSharedDisk(t.TempDir())

	exists, err := store.Exists("exports/okr/report.csv")
	assert.NoError(t, err)
	assert.False(t, exists)

	err = store.Write("exports/okr/report.csv", strings.NewReader("objective,progress\n"))
	assert.NoError(t, err)

	exists, err = store.Exists("exports/okr/report.csv")
	assert.NoError(t, err)
	assert.True(t, exists)

	err = store.Append("exports/okr/report.csv", strings.NewReader("launch,80\n"))
	assert.NoError(t, err)

	reader, err := store.Read("exports/okr/report.csv")
	assert.NoError(t, err)
	defer reader.Close()

	content, err := io.ReadAll(reader)
	assert.NoError(t, err)
	assert.Equal(t, "objective,progress\nlaunch,80\n", string(content))

	size, err := store.Size("exports/okr/report.csv")
	assert.NoError(t, err)
	assert.Equal(t, int64(len(content)), size)

	entries, err := store.List("exports/okr")
	assert.NoError(t, err)
	assert.Equal(t, []string{"report.csv"}, entries)

	err = store.Delete("exports/okr/report.csv")
	assert.NoError(t, err)

	exists, err = store.Exists("exports/okr/report.csv")
	assert.NoError(t, err)
	assert.False(t, exists)
}

func TestSharedDiskUsage(t *testing.T) {
	store := NewSharedDisk(t.TempDir())

	usage, err := store.Usage()
	assert.NoError(t, err)
	assert.Greater(t, usage.TotalBytes, uint64(0))
	assert.LessOrEqual(t, usage.FreeBytes, usage.TotalBytes)
}
