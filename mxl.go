package engrave

import (
	"archive/zip"
	"fmt"
	"io"
	"time"
)

// mxlContainerXML is the fixed META-INF/container.xml every MXL archive
// carries, pointing readers at the one score file inside it.
const mxlContainerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container>
  <rootfiles>
    <rootfile full-path="%s" media-type="application/vnd.recordare.musicxml+xml"/>
  </rootfiles>
</container>
`

// createMXLEntry writes a ZIP entry with the current timestamp and deflate
// compression.
func createMXLEntry(w *zip.Writer, name string) (io.Writer, error) {
	header := &zip.FileHeader{
		Name:     name,
		Modified: time.Now(),
		Method:   zip.Deflate,
	}
	return w.CreateHeader(header)
}

// PackageMXL wraps a rendered MusicXML document in a compressed .mxl
// archive: a META-INF/container.xml pointing at scoreName, plus the score
// itself, per §6.2.
func PackageMXL(xmlBytes []byte, scoreName string, w io.Writer) error {
	if scoreName == "" {
		scoreName = "score.xml"
	}

	zw := zip.NewWriter(w)
	defer zw.Close()

	containerWriter, err := createMXLEntry(zw, "META-INF/container.xml")
	if err != nil {
		return fmt.Errorf("engrave: creating container.xml entry: %w", err)
	}
	if _, err := fmt.Fprintf(containerWriter, mxlContainerXML, scoreName); err != nil {
		return fmt.Errorf("engrave: writing container.xml: %w", err)
	}

	scoreWriter, err := createMXLEntry(zw, scoreName)
	if err != nil {
		return fmt.Errorf("engrave: creating %s entry: %w", scoreName, err)
	}
	if _, err := scoreWriter.Write(xmlBytes); err != nil {
		return fmt.Errorf("engrave: writing %s: %w", scoreName, err)
	}

	return nil
}
