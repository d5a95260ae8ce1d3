package util

import (
	"path/filepath"
	"testing"
)

func TestPackagePaths(t *testing.T) {
	if got := PackagePath("/srv/packages", "hello"); got != filepath.Join("/srv/packages", "hello.zip") {
		t.Fatalf("unexpected package path: %s", got)
	}
	if got := LockPath("/srv/packages", "hello"); got != filepath.Join("/srv/packages", ".locks", "hello.lock") {
		t.Fatalf("unexpected lock path: %s", got)
	}
	if got := SlugFromPath("/srv/packages/hello.zip"); got != "hello" {
		t.Fatalf("unexpected slug: %s", got)
	}
}

func TestValidSlug(t *testing.T) {
	for _, bad := range []string{"", ".", "..", "../etc", "a/b", ".locks"} {
		if err := ValidSlug(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
	if err := ValidSlug("hello-dolly"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
