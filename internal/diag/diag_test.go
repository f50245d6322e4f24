package diag

import "testing"

func TestDiskFreeReportsPositiveFreeSpace(t *testing.T) {
	free, err := DiskFree(t.TempDir())
	if err != nil {
		t.Fatalf("DiskFree: %v", err)
	}
	if free == 0 {
		t.Fatalf("expected nonzero free space on a usable temp filesystem")
	}
}

func TestLowOnSpaceThresholds(t *testing.T) {
	dir := t.TempDir()

	low, err := LowOnSpace(dir, 0)
	if err != nil {
		t.Fatalf("LowOnSpace: %v", err)
	}
	if low {
		t.Fatalf("a zero low-water mark should never trigger")
	}

	low, err = LowOnSpace(dir, 1<<62)
	if err != nil {
		t.Fatalf("LowOnSpace: %v", err)
	}
	if !low {
		t.Fatalf("an enormous low-water mark should always trigger")
	}
}
