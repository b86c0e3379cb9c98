package cache

import (
	"bytes"
	"strings"
	"testing"
)

func TestCompressRoundTrip(t *testing.T) {
	body := []byte(strings.Repeat(`{"EUR":0.92,"GBP":0.79}`, 64))
	compressed, err := compressBody(body)
	if err != nil {
		t.Fatalf("compress error: %v", err)
	}
	out, err := decompressBody(compressed, int64(len(body)))
	if err != nil {
		t.Fatalf("decompress error: %v", err)
	}
	if !bytes.Equal(out, body) {
		t.Fatalf("round trip mismatch")
	}
}

func TestCompressSkipsIncompressible(t *testing.T) {
	if _, err := compressBody([]byte("x")); err != errIncompressible {
		t.Fatalf("expected errIncompressible, got %v", err)
	}
}

func TestIdentityFileNameIsStable(t *testing.T) {
	a := identityFileName("GET https://converter.local/")
	b := identityFileName("GET https://converter.local/")
	c := identityFileName("GET https://converter.local/index.html")
	if a != b || a == c {
		t.Fatalf("unexpected file names: %s %s %s", a, b, c)
	}
	if !strings.HasSuffix(a, entrySuffix) || len(a) != 32+len(entrySuffix) {
		t.Fatalf("unexpected file name format: %s", a)
	}
}
