package version

import "testing"

func TestString(t *testing.T) {
	orig := [3]string{Version, Commit, BuildTime}
	t.Cleanup(func() { Version, Commit, BuildTime = orig[0], orig[1], orig[2] })

	Version, Commit, BuildTime = "dev", "unknown", "unknown"
	if got := String(); got != "vdev" {
		t.Fatalf("String() = %q, want %q", got, "vdev")
	}

	Version, Commit, BuildTime = "1.2.0", "abc123", "2024-05-01"
	if got, want := String(), "v1.2.0 (commit: abc123, built: 2024-05-01)"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
	if got := Current(); got.Version != "1.2.0" || got.Commit != "abc123" {
		t.Fatalf("unexpected Current(): %+v", got)
	}
}
