package compression

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

var sample = []byte(strings.Repeat("id,name,amount\n1,alpha,10.5\n2,\"beta, inc\",20\n", 50))

func TestRoundTrip(t *testing.T) {
	for _, algo := range []Algorithm{None, Gzip, Snappy, LZ4, Zstd, S2, Deflate} {
		for _, level := range []Level{Fastest, Default, Best} {
			t.Run(string(algo), func(t *testing.T) {
				comp, err := NewCompressor(&Config{Algorithm: algo, Level: level})
				if err != nil {
					t.Fatalf("Failed to create %s compressor: %v", algo, err)
				}

				compressed, err := comp.Compress(sample)
				if err != nil {
					t.Fatalf("Failed to compress: %v", err)
				}

				decompressed, err := comp.Decompress(compressed)
				if err != nil {
					t.Fatalf("Failed to decompress: %v", err)
				}
				if !bytes.Equal(sample, decompressed) {
					t.Errorf("Decompressed data doesn't match original for %s", algo)
				}

				r, err := NewReader(bytes.NewReader(compressed), algo)
				if err != nil {
					t.Fatalf("Failed to open reader: %v", err)
				}
				defer r.Close()

				streamed, err := io.ReadAll(r)
				if err != nil {
					t.Fatalf("Failed to read stream: %v", err)
				}
				if !bytes.Equal(sample, streamed) {
					t.Errorf("Streamed data doesn't match original for %s", algo)
				}
			})
		}
	}
}

func TestDetectFromMagic(t *testing.T) {
	for _, algo := range []Algorithm{Gzip, Snappy, LZ4, Zstd, S2} {
		t.Run(string(algo), func(t *testing.T) {
			comp, err := NewCompressor(&Config{Algorithm: algo, Level: Default})
			if err != nil {
				t.Fatalf("Failed to create compressor: %v", err)
			}
			compressed, err := comp.Compress(sample)
			if err != nil {
				t.Fatalf("Failed to compress: %v", err)
			}

			header := compressed
			if len(header) > MagicSize {
				header = header[:MagicSize]
			}
			if got := DetectFromMagic(header); got != algo {
				t.Errorf("DetectFromMagic() = %s, want %s", got, algo)
			}
		})
	}

	if got := DetectFromMagic([]byte("a,b,c\n")); got != None {
		t.Errorf("plain text detected as %s", got)
	}
}

func TestDetectFromPath(t *testing.T) {
	tests := map[string]Algorithm{
		"data.csv":         None,
		"data.csv.gz":      Gzip,
		"DATA.CSV.ZST":     Zstd,
		"s3://b/k.csv.lz4": LZ4,
		"x.sz":             Snappy,
		"x.s2":             S2,
		"x.deflate":        Deflate,
	}
	for path, want := range tests {
		if got := DetectFromPath(path); got != want {
			t.Errorf("DetectFromPath(%q) = %s, want %s", path, got, want)
		}
	}
}

func TestParseAlgorithm(t *testing.T) {
	if a, err := ParseAlgorithm(""); err != nil || a != Auto {
		t.Errorf("empty name = %s, %v", a, err)
	}
	if a, err := ParseAlgorithm("GZ"); err != nil || a != Gzip {
		t.Errorf("GZ = %s, %v", a, err)
	}
	if _, err := ParseAlgorithm("brotli"); err == nil {
		t.Error("expected error for brotli")
	}
}
