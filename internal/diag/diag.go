// Package diag provides the node's disk and memory diagnostics: a disk-free
// guard consulted before accepting writes, and the read-only snapshot shown
// by cmd/dnetctl's status command.
//
// The guard itself uses syscall.Statfs directly -- no pack dependency wraps
// statfs(2), so this is the justified stdlib exception recorded in
// DESIGN.md. The broader snapshot (memory pressure, per-device I/O
// counters) is read via github.com/c9s/goprocinfo/linux, the way that
// dependency is designed to be used, parsing /proc/meminfo and
// /proc/diskstats.
package diag

import (
	"fmt"
	"syscall"

	"github.com/c9s/goprocinfo/linux"
)

// DefaultLowWaterBytes is the free-space threshold below which the store
// rejects a WRITE with an IO status rather than risk filling the disk.
const DefaultLowWaterBytes = 64 << 20 // 64MiB

// Snapshot is a point-in-time diagnostics read.
type Snapshot struct {
	FreeBytes  uint64
	TotalBytes uint64
	MemFreeKB  uint64
	MemTotalKB uint64
	Disks      []linux.DiskStats
}

// DiskFree reports free bytes on the filesystem backing root.
func DiskFree(root string) (uint64, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(root, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// LowOnSpace reports whether root's free space has fallen below
// lowWaterBytes.
func LowOnSpace(root string, lowWaterBytes uint64) (bool, error) {
	free, err := DiskFree(root)
	if err != nil {
		return false, err
	}
	return free < lowWaterBytes, nil
}

// Read builds a full diagnostics snapshot for root: free disk space plus
// system memory pressure and per-device I/O counters.
func Read(root string) (*Snapshot, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(root, &st); err != nil {
		return nil, err
	}

	mem, err := linux.ReadMemInfo("/proc/meminfo")
	if err != nil {
		return nil, fmt.Errorf("diag: reading meminfo: %w", err)
	}

	disks, err := linux.ReadDiskStats("/proc/diskstats")
	if err != nil {
		return nil, fmt.Errorf("diag: reading diskstats: %w", err)
	}

	return &Snapshot{
		FreeBytes:  st.Bavail * uint64(st.Bsize),
		TotalBytes: st.Blocks * uint64(st.Bsize),
		MemFreeKB:  mem.MemFree,
		MemTotalKB: mem.MemTotal,
		Disks:      disks,
	}, nil
}
