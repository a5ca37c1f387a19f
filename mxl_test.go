package engrave

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackageMXLProducesReadableArchive(t *testing.T) {
	var buf bytes.Buffer
	xml := []byte("<score-partwise></score-partwise>")

	err := PackageMXL(xml, "score.xml", &buf)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)

	names := map[string]*zip.File{}
	for _, f := range zr.File {
		names[f.Name] = f
	}

	require.Contains(t, names, "META-INF/container.xml")
	require.Contains(t, names, "score.xml")

	rc, err := names["score.xml"].Open()
	require.NoError(t, err)
	defer rc.Close()
	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, xml, content)

	cr, err := names["META-INF/container.xml"].Open()
	require.NoError(t, err)
	defer cr.Close()
	containerContent, err := io.ReadAll(cr)
	require.NoError(t, err)
	assert.Contains(t, string(containerContent), `full-path="score.xml"`)
}

func TestPackageMXLDefaultsScoreName(t *testing.T) {
	var buf bytes.Buffer
	err := PackageMXL([]byte("<x/>"), "", &buf)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	var found bool
	for _, f := range zr.File {
		if f.Name == "score.xml" {
			found = true
		}
	}
	assert.True(t, found)
}
