package fetcher

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestZIP(t *testing.T, files map[string]string) string {
	t.Helper()
	zipPath := filepath.Join(t.TempDir(), "test.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	w := zip.NewWriter(f)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return zipPath
}

func TestExtractZIPFile_Specific(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"2019_Gaz_counties_national.txt": "USPS\tGEOID\n",
		"readme.txt":                     "ignore me",
	})

	destDir := t.TempDir()
	path, err := ExtractZIPFile(zipPath, "2019_Gaz_counties_national.txt", destDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "2019_Gaz_counties_national.txt"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "USPS\tGEOID\n", string(data))

	_, err = os.Stat(filepath.Join(destDir, "readme.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestExtractZIPFile_NestedEntry(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"2019_Gazetteer/2019_Gaz_tracts_national.txt": "tracts",
	})

	destDir := t.TempDir()
	path, err := ExtractZIPFile(zipPath, "2019_Gaz_tracts_national.txt", destDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "2019_Gaz_tracts_national.txt"), path)
}

func TestExtractZIPFile_NotFound(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{"a.txt": "aaa"})

	destDir := t.TempDir()
	_, err := ExtractZIPFile(zipPath, "missing.txt", destDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestExtractZIPFile_BadArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.zip")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))

	_, err := ExtractZIPFile(path, "a.txt", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open archive")
}
