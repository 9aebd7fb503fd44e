package workspace

import (
	"errors"
	"testing"

	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

func TestCheckPathSafety(t *testing.T) {
	tests := []struct {
		name string
		path string
		ok   bool
	}{
		// Accepted
		{"relative file", "notes/todo.md", true},
		{"plain filename", "readme.txt", true},
		{"dot current dir", "./docs/spec.md", true},
		{"absolute project path", "/home/dev/project/file.go", true},
		{"hidden file", ".WHISPER/state/x.json", true},
		{"conan is not con", "conan.txt", true},
		{"dots inside names", "a.b.c", true},

		// Rejected
		{"empty", "", false},
		{"null byte", "file\x00.txt", false},
		{"parent traversal", "../secrets", false},
		{"embedded traversal", "docs/../../etc/passwd", false},
		{"backslash traversal", `..\windows`, false},
		{"semicolon", "a;rm -rf /", false},
		{"backtick", "`whoami`.txt", false},
		{"dollar", "$HOME/file", false},
		{"pipe", "a|b", false},
		{"redirect", "out>file", false},
		{"newline", "a\nb", false},
		{"etc", "/etc/passwd", false},
		{"usr", "/usr/bin/python", false},
		{"dev", "/dev/null", false},
		{"proc", "/proc/self/environ", false},
		{"root home", "/root/.ssh/id_rsa", false},
		{"device name", "con", false},
		{"device name with ext", "NUL.txt", false},
		{"device in subdir", "out/aux.log", false},
		{"com port", "COM1", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckPathSafety(tc.path)
			if tc.ok && err != nil {
				t.Errorf("CheckPathSafety(%q) = %v, want nil", tc.path, err)
			}
			if !tc.ok {
				if err == nil {
					t.Fatalf("CheckPathSafety(%q) = nil, want error", tc.path)
				}
				var te *models.ToolError
				if !errors.As(err, &te) {
					t.Fatalf("CheckPathSafety(%q) returned %T, want *models.ToolError", tc.path, err)
				}
				if te.Type != models.ErrInvalidPath {
					t.Errorf("error type = %s, want %s", te.Type, models.ErrInvalidPath)
				}
			}
		})
	}
}
