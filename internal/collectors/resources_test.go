package collectors

import (
	"path/filepath"
	"testing"
)

func TestNearestExisting(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "a", "b", "c")
	if got := nearestExisting(missing); got != dir {
		t.Fatalf("nearestExisting(%q) = %q, want %q", missing, got, dir)
	}
	if got := nearestExisting(dir); got != dir {
		t.Fatalf("nearestExisting(%q) = %q", dir, got)
	}
}

func TestResourceCollectorProcess(t *testing.T) {
	c := NewResourceCollector()
	res, err := c.Process()
	if err != nil {
		t.Skipf("process stats unavailable: %v", err)
	}
	if res.RSSMB == 0 && res.Threads == 0 {
		t.Fatalf("empty process snapshot: %+v", res)
	}
}

func TestResourceCollectorHostDisk(t *testing.T) {
	c := NewResourceCollector()
	res, err := c.Host(filepath.Join(t.TempDir(), "not-yet-created"))
	if res == nil {
		t.Fatal("Host returned nil result")
	}
	if err != nil {
		t.Logf("partial host stats: %v", err)
	}
	if res.DiskPercent < 0 || res.DiskPercent > 100 {
		t.Fatalf("DiskPercent = %v", res.DiskPercent)
	}
}
