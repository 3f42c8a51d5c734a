package domain

import "testing"

func TestSourceRef_IsUpload(t *testing.T) {
	tests := []struct {
		ref  SourceRef
		want bool
	}{
		{"upload:1234", true},
		{"  upload:1234", true},
		{"https://example.com/upload:1234", false},
		{"files/upload.pdf", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := tt.ref.IsUpload(); got != tt.want {
			t.Errorf("SourceRef(%q).IsUpload() = %v, want %v", tt.ref, got, tt.want)
		}
	}
}
