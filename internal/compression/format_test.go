package compression

import (
	"errors"
	"testing"
)

func TestEncodeDecodeNarrowTiles(t *testing.T) {
	indices := make([]int, 64)
	for i := range indices {
		indices[i] = 8
	}

	data, err := EncodeChunkTiles(8, 8, indices)
	if err != nil {
		t.Fatalf("EncodeChunkTiles failed: %v", err)
	}
	if len(data) >= len(indices)+10 {
		t.Errorf("Expected uniform chunk to compress, got %d bytes", len(data))
	}

	w, h, got, err := DecodeChunkTiles(data)
	if err != nil {
		t.Fatalf("DecodeChunkTiles failed: %v", err)
	}
	if w != 8 || h != 8 {
		t.Fatalf("Expected 8x8, got %dx%d", w, h)
	}
	for i := range indices {
		if got[i] != indices[i] {
			t.Fatalf("Index %d: expected %d, got %d", i, indices[i], got[i])
		}
	}
}

func TestEncodeWideTiles(t *testing.T) {
	indices := []int{0, 255, 256, 4000, 65535, 7}

	data, err := EncodeChunkTiles(3, 2, indices)
	if err != nil {
		t.Fatalf("EncodeChunkTiles failed: %v", err)
	}
	_, _, got, err := DecodeChunkTiles(data)
	if err != nil {
		t.Fatalf("DecodeChunkTiles failed: %v", err)
	}
	for i := range indices {
		if got[i] != indices[i] {
			t.Fatalf("Index %d: expected %d, got %d", i, indices[i], got[i])
		}
	}
}

func TestEncodeChunkTilesRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		w, h    int
		indices []int
	}{
		{"zero width", 0, 1, nil},
		{"length mismatch", 2, 2, []int{1, 2, 3}},
		{"negative index", 1, 1, []int{-1}},
		{"index too large", 1, 1, []int{70000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EncodeChunkTiles(tt.w, tt.h, tt.indices); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestDecodeChunkTilesRejectsGarbage(t *testing.T) {
	if _, _, _, err := DecodeChunkTiles([]byte("not gzip")); !errors.Is(err, ErrMalformedTiles) {
		t.Errorf("Expected ErrMalformedTiles, got %v", err)
	}

	other, err := gzipCompress([]byte("CHNK\x01\x00\x01\x00\x01\x00\x00"), DefaultGzipLevel)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := DecodeChunkTiles(other); !errors.Is(err, ErrMalformedTiles) {
		t.Errorf("Expected ErrMalformedTiles for bad magic, got %v", err)
	}
}

func TestFormatCompressedTiles(t *testing.T) {
	indices := []int{1, 2, 3, 4}
	formatted, err := CompressAndFormatTiles(2, 2, indices)
	if err != nil {
		t.Fatalf("CompressAndFormatTiles failed: %v", err)
	}
	if formatted.Format != "binary_gzip" {
		t.Errorf("Expected format 'binary_gzip', got '%s'", formatted.Format)
	}
	if formatted.UncompressedSize != len(indices) {
		t.Errorf("Expected tile count %d, got %d", len(indices), formatted.UncompressedSize)
	}
	if len(formatted.Data) == 0 {
		t.Fatal("Base64 data is empty")
	}

	w, h, got, err := ParseCompressedTiles(formatted)
	if err != nil {
		t.Fatalf("ParseCompressedTiles failed: %v", err)
	}
	if w != 2 || h != 2 || got[3] != 4 {
		t.Errorf("Unexpected decode %dx%d %v", w, h, got)
	}

	if _, _, _, err := ParseCompressedTiles(&CompressedTiles{Format: "json"}); err == nil {
		t.Error("Expected error for unsupported format")
	}
}
