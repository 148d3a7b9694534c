package checksum

import (
	"errors"
	"io"
	"strings"
	"testing"
)

const (
	// echo -n "hello" | sha256sum
	helloSum = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	emptySum = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
)

func TestSum(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "hello", input: "hello", want: helloSum},
		{name: "empty string", input: "", want: emptySum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sum([]byte(tt.input)); got != tt.want {
				t.Errorf("Sum() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCalculateSHA256(t *testing.T) {
	got, err := CalculateSHA256(strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != helloSum {
		t.Errorf("CalculateSHA256() = %s, want %s", got, helloSum)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestCalculateSHA256_ReadError(t *testing.T) {
	if _, err := CalculateSHA256(failingReader{}); err == nil {
		t.Fatal("expected error from failing reader")
	}
}

func TestHasher_MatchesSum(t *testing.T) {
	h := NewHasher()
	var sink strings.Builder
	if _, err := io.Copy(io.MultiWriter(&sink, h), strings.NewReader("hel")); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Write([]byte("lo")); err != nil {
		t.Fatal(err)
	}
	if h.Hex() != helloSum {
		t.Errorf("Hex() = %s, want %s", h.Hex(), helloSum)
	}
	if sink.String() != "hel" {
		t.Errorf("sink = %q", sink.String())
	}
}
