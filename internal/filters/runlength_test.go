package filters

import (
	"bytes"
	"testing"
)

func TestRunLengthDecode(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		want    []byte
		wantErr bool
	}{
		{"literal", []byte{2, 'a', 'b', 'c', 128}, []byte("abc"), false},
		{"repeat", []byte{254, 'x', 128}, []byte("xxx"), false},
		{"mixed", []byte{0, 'a', 255, 'b', 1, 'c', 'd', 128}, []byte("abbcd"), false},
		{"missing end marker", []byte{0, 'q'}, []byte("q"), false},
		{"trailing data ignored", []byte{0, 'a', 128, 0, 'b'}, []byte("a"), false},
		{"longest repeat", []byte{129, 'z', 128}, bytes.Repeat([]byte("z"), 128), false},
		{"truncated literal", []byte{4, 'a'}, nil, true},
		{"truncated repeat", []byte{200}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RunLengthDecode(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("RunLengthDecode failed: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
