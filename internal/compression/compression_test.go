package compression

import (
	"bytes"
	"testing"
)

func TestSnappyRoundTrip(t *testing.T) {
	c := NewSnappyCompressor()

	data := bytes.Repeat([]byte("dps timeline block "), 64)
	compressed, err := c.Compress(data)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if len(compressed) >= len(data) {
		t.Errorf("Compress() did not shrink repetitive input: %d >= %d", len(compressed), len(data))
	}

	decompressed, err := c.Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress() error = %v", err)
	}
	if !bytes.Equal(decompressed, data) {
		t.Errorf("round trip mismatch")
	}
}

func TestSnappyEmpty(t *testing.T) {
	c := NewSnappyCompressor()

	out, err := c.Compress(nil)
	if err != nil {
		t.Fatalf("Compress(nil) error = %v", err)
	}
	if len(out) != 0 {
		t.Errorf("Compress(nil) = %v, want empty", out)
	}
}

func TestSnappyDecompressGarbage(t *testing.T) {
	c := NewSnappyCompressor()
	if _, err := c.Decompress([]byte{0xff, 0x01, 0x02}); err == nil {
		t.Errorf("Decompress(garbage) error = nil, want failure")
	}
}

func TestGetCompressor(t *testing.T) {
	for _, algo := range []Algorithm{None, Snappy} {
		c, err := GetCompressor(algo)
		if err != nil {
			t.Fatalf("GetCompressor(%d) error = %v", algo, err)
		}
		if c.Algorithm() != algo {
			t.Errorf("GetCompressor(%d).Algorithm() = %d", algo, c.Algorithm())
		}
	}

	if _, err := GetCompressor(Algorithm(9)); err == nil {
		t.Errorf("GetCompressor(9) error = nil, want unsupported")
	}
}
