package fetcher

import (
	"archive/zip"
	"bytes"
	"strings"

	"github.com/rotisserie/eris"
)

// OpenArchive opens an in-memory ZIP archive, as downloaded from a batch
// results endpoint.
func OpenArchive(data []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}
	return zr, nil
}

// EntriesWithSuffix returns the archive entries whose name ends with suffix,
// skipping directories. Entries with any other naming convention are out of
// scope and left untouched.
func EntriesWithSuffix(zr *zip.Reader, suffix string) []*zip.File {
	var files []*zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if strings.HasSuffix(f.Name, suffix) {
			files = append(files, f)
		}
	}
	return files
}
