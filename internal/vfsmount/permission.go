package vfsmount

// Permission is the bitset of operations a mount grants (spec §3).
type Permission uint8

const (
	PermRead Permission = 1 << iota
	PermWrite
	PermCreate
	PermDelete
	PermExec
)

// PermReadOnly and PermReadWrite are the two reference-configuration
// shorthands (spec §6's table: "read+exec" and
// "read+write+create+delete+exec").
const (
	PermReadOnly  = PermRead | PermExec
	PermReadWrite = PermRead | PermWrite | PermCreate | PermDelete | PermExec
)

func (p Permission) Has(bit Permission) bool { return p&bit != 0 }
