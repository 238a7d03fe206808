package vfscommon

// BufferStrategy picks how a write context's buffer is held before
// commit (spec §4.3).
type BufferStrategy int

const (
	StrategyInRAM BufferStrategy = iota
	StrategyBackendStaging
)

// Default per-fd / per-mount write limits (spec §4.3).
const (
	DefaultPerFDLimit    = 64 << 20  // 64 MiB
	DefaultPerMountLimit = 256 << 20 // 256 MiB
)

// WritePolicy governs how a mount handles buffered writes. It is set
// once at mount-table construction and is immutable for the life of
// the mount (spec §3, §4.3).
type WritePolicy struct {
	Writable      bool
	Buffered      bool // always true today; reserved for a future write-through strategy
	PerFDLimit    int64
	PerMountLimit int64
	Strategy      BufferStrategy
}

// ReadOnlyPolicy is the policy for a mount that rejects all writing opens.
func ReadOnlyPolicy() WritePolicy {
	return WritePolicy{Writable: false, Buffered: true}
}

// ReadWritePolicy returns a standard buffered read-write policy; zero
// limits fall back to the spec defaults, matching
// vfs_write_policy_new's "caller specifies behavior, we fill in
// defaults" contract.
func ReadWritePolicy(perFD, perMount int64) WritePolicy {
	if perFD == 0 {
		perFD = DefaultPerFDLimit
	}
	if perMount == 0 {
		perMount = DefaultPerMountLimit
	}
	return WritePolicy{
		Writable:      true,
		Buffered:      true,
		PerFDLimit:    perFD,
		PerMountLimit: perMount,
		Strategy:      StrategyInRAM,
	}
}
