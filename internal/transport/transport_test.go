// internal/transport/transport_test.go
package transport

import "testing"

func TestWords(t *testing.T) {
	got, err := Words([]byte{0x15, 0x3D, 0x00, 0x01, 0xFF, 0xF6})
	if err != nil {
		t.Fatalf("Words: %v", err)
	}
	want := []uint16{0x153D, 0x0001, 0xFFF6}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("word %d = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestWordsEmpty(t *testing.T) {
	got, err := Words(nil)
	if err != nil {
		t.Fatalf("Words: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("words = %v, want empty", got)
	}
}

func TestWordsOddLength(t *testing.T) {
	if _, err := Words([]byte{0x15}); err == nil {
		t.Fatal("Words accepted an odd payload")
	}
}
