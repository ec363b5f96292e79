package imagestore

import (
	"errors"
	"testing"
)

func TestValidateUpload(t *testing.T) {
	m, err := New(t.TempDir(), "", "", nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	tests := []struct {
		name     string
		declared string
		sniffed  string
		want     string
		wantErr  error
	}{
		{name: "declared and sniffed agree", declared: "image/png", sniffed: "image/png", want: "image/png"},
		{name: "declared with params", declared: "Image/JPEG; charset=binary", sniffed: "image/jpeg", want: "image/jpeg"},
		{name: "jpg alias", declared: "image/jpg", sniffed: "image/jpeg", want: "image/jpeg"},
		{name: "sniffed only", sniffed: "image/gif", want: "image/gif"},
		{name: "unknown content falls back to declared", declared: "image/png", sniffed: "application/octet-stream", want: "image/png"},
		{name: "generic declared type defers to content", declared: "application/octet-stream", sniffed: "image/png", want: "image/png"},
		{name: "text upload", declared: "text/plain", sniffed: "text/plain; charset=utf-8", wantErr: ErrDisallowedType},
		{name: "text disguised as png", declared: "image/png", sniffed: "text/plain; charset=utf-8", wantErr: ErrDisallowedType},
		{name: "mismatch", declared: "image/png", sniffed: "image/gif", wantErr: ErrMediaTypeMismatch},
		{name: "nothing known", wantErr: ErrDisallowedType},
		{name: "malformed", declared: "image/", wantErr: ErrDisallowedType},
		{name: "webp not allowed by default", declared: "image/webp", wantErr: ErrDisallowedType},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := m.ValidateUpload(tc.declared, tc.sniffed)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %q, %v", tc.wantErr, got, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestConfigurePolicy(t *testing.T) {
	m, err := New(t.TempDir(), "", "", nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	m.ConfigurePolicy([]string{"image/webp", "not a type/"}, false)
	if got, err := m.ValidateUpload("image/webp", ""); err != nil || got != "image/webp" {
		t.Fatalf("expected webp to be allowed, got %q, %v", got, err)
	}
	if _, err := m.ValidateUpload("image/png", ""); !errors.Is(err, ErrDisallowedType) {
		t.Fatalf("expected png to be rejected, got %v", err)
	}
	if _, err := m.ValidateUpload("image/webp", "image/png"); !errors.Is(err, ErrDisallowedType) {
		t.Fatalf("expected png content to be rejected, got %v", err)
	}

	m.ConfigurePolicy(nil, false)
	if got, err := m.ValidateUpload("image/png", "image/gif"); err != nil || got != "image/png" {
		t.Fatalf("mismatch should be tolerated when not rejected, got %q, %v", got, err)
	}
}

func TestExtension(t *testing.T) {
	tests := []struct {
		filename  string
		mediaType string
		want      string
	}{
		{filename: "photo.JPEG", mediaType: "image/jpeg", want: ".jpeg"},
		{filename: "photo.jpg", mediaType: "image/jpeg", want: ".jpg"},
		{filename: "photo", mediaType: "image/png", want: ".png"},
		{filename: "photo.exe", mediaType: "image/gif", want: ".gif"},
	}
	for _, tc := range tests {
		if got := Extension(tc.filename, tc.mediaType); got != tc.want {
			t.Fatalf("Extension(%q, %q) = %q, want %q", tc.filename, tc.mediaType, got, tc.want)
		}
	}
}
