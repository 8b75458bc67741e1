package utils

import "testing"

func TestLockScriptsCompile(t *testing.T) {
	// Compile-time smoke test: scripts should be initialized.
	if lockAcquireScript == nil || lockReleaseScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}
