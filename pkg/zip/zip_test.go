package zip

import (
	"archive/zip"
	"bytes"
	"testing"
)

func TestArchiveAssets(t *testing.T) {
	data, err := ArchiveAssets([]Asset{
		{Filename: "a.png", MIME: "image/png", Data: []byte("png-bytes")},
		{Filename: "b.jpg", MIME: "image/jpeg", Data: []byte("jpg-bytes")},
	})
	if err != nil {
		t.Fatalf("ArchiveAssets error: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("invalid archive: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(zr.File))
	}
	if zr.File[0].Name != "a.png" || zr.File[1].Name != "b.jpg" {
		t.Fatalf("unexpected entry names: %s, %s", zr.File[0].Name, zr.File[1].Name)
	}
}

func TestArchiveAssetsEmpty(t *testing.T) {
	data, err := ArchiveAssets(nil)
	if err != nil {
		t.Fatalf("ArchiveAssets error: %v", err)
	}
	if _, err := zip.NewReader(bytes.NewReader(data), int64(len(data))); err != nil {
		t.Fatalf("expected a valid empty archive: %v", err)
	}
}
