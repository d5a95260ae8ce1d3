package storage

import "testing"

func TestPackageKey(t *testing.T) {
	key := PackageKey("my-plugin")
	if key != "wppus-packages/my-plugin.zip" {
		t.Fatalf("unexpected key: %s", key)
	}
	if slug := SlugFromKey(key); slug != "my-plugin" {
		t.Fatalf("unexpected slug: %s", slug)
	}
}

func TestIsPackageKey(t *testing.T) {
	cases := map[string]bool{
		"wppus-packages/a.zip":        true,
		"wppus-packages/":             false,
		"wppus-packages/.zip":         false,
		"wppus-packages/nested/b.zip": false,
		"wppus-packages/readme.txt":   false,
		"other/a.zip":                 false,
	}
	for key, want := range cases {
		if got := IsPackageKey(key); got != want {
			t.Fatalf("IsPackageKey(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestFolderKey(t *testing.T) {
	if FolderKey("wppus-packages") != "wppus-packages/" || FolderKey("wppus-packages/") != "wppus-packages/" {
		t.Fatalf("folder key must carry exactly one trailing slash")
	}
}
