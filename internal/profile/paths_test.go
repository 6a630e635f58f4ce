package profile

import (
	"strings"
	"testing"
)

func TestPathsAreProfileScoped(t *testing.T) {
	name := "alpha"
	paths := []string{
		Dir(name),
		LockPath(name),
		DBPath(name),
		LogPath(name),
	}
	for _, p := range paths {
		if !strings.Contains(p, "profiles/alpha") {
			t.Errorf("path %q not scoped to profile", p)
		}
	}
}

func TestConfigPathUnderBase(t *testing.T) {
	if !strings.HasPrefix(ConfigPath(), BaseDir()) {
		t.Errorf("ConfigPath %q not under BaseDir %q", ConfigPath(), BaseDir())
	}
}
