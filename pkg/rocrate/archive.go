package rocrate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

// File is a payload file shipped next to the metadata document.
type File struct {
	Name string
	Data []byte
}

// Archive is a finished crate: the metadata graph plus its payload files.
type Archive struct {
	Graph *Graph
	Files []File
}

// WriteZip serializes the archive as a zip with ro-crate-metadata.json at
// its root. Payload names must be relative, unique, and must not shadow the
// metadata document.
func (a *Archive) WriteZip(w io.Writer) error {
	if a.Graph == nil {
		return fmt.Errorf("archive has no graph")
	}

	seen := map[string]struct{}{MetadataID: {}}
	for _, f := range a.Files {
		name := path.Clean(f.Name)
		if name == "." || path.IsAbs(name) || name == ".." || strings.HasPrefix(name, "../") {
			return fmt.Errorf("invalid payload file name %q", f.Name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate payload file name %q", f.Name)
		}
		seen[name] = struct{}{}
	}

	metadata, err := json.MarshalIndent(a.Graph, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode crate metadata: %w", err)
	}

	zw := zip.NewWriter(w)
	modified := time.Now().UTC()
	if err := writeEntry(zw, MetadataID, metadata, modified); err != nil {
		return err
	}
	for _, f := range a.Files {
		if err := writeEntry(zw, path.Clean(f.Name), f.Data, modified); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish crate zip: %w", err)
	}
	return nil
}

// Bytes returns the zipped archive.
func (a *Archive) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := a.WriteZip(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeEntry(zw *zip.Writer, name string, data []byte, modified time.Time) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return fmt.Errorf("failed to add %s to crate zip: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("failed to write %s to crate zip: %w", name, err)
	}
	return nil
}

// ReadZip opens a crate zip and returns its graph and payload files.
func ReadZip(data []byte) (*Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open crate zip: %w", err)
	}

	archive := &Archive{}
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", zf.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", zf.Name, err)
		}

		if zf.Name == MetadataID {
			archive.Graph, err = ParseMetadata(content)
			if err != nil {
				return nil, err
			}
			continue
		}
		archive.Files = append(archive.Files, File{Name: zf.Name, Data: content})
	}

	if archive.Graph == nil {
		return nil, fmt.Errorf("crate zip has no %s", MetadataID)
	}
	return archive, nil
}
