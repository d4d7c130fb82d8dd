package version

import "testing"

func TestString(t *testing.T) {
	oldVersion, oldCommit := Version, GitCommit
	t.Cleanup(func() { Version, GitCommit = oldVersion, oldCommit })

	tests := []struct {
		version, commit, want string
	}{
		{"dev", "unknown", "camcore dev"},
		{"v0.3.0", "", "camcore v0.3.0"},
		{"v0.3.0", "0123456789abcdef", "camcore v0.3.0 (0123456)"},
		{"v0.3.1", "abc", "camcore v0.3.1 (abc)"},
	}
	for _, tt := range tests {
		Version, GitCommit = tt.version, tt.commit
		if got := String(); got != tt.want {
			t.Errorf("String() with %q/%q = %q, want %q", tt.version, tt.commit, got, tt.want)
		}
	}
}

func TestGet(t *testing.T) {
	info := Get()
	if info.Name != Name {
		t.Errorf("Name = %q, want %q", info.Name, Name)
	}
	if info.GoVersion == "" || info.Platform == "" {
		t.Errorf("runtime fields missing: %+v", info)
	}
}
