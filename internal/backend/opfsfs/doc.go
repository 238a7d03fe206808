// Package opfsfs is the browser-OPFS-backed Backend variant
// (SPEC_FULL.md §4.1). Its real implementation only exists on a
// js/wasm build, where the Origin Private File System API is actually
// reachable through syscall/js; on every other platform it compiles to
// an inert stand-in that answers ENOSYS to every call, so the mount
// table shape stays identical across targets even though the backend
// itself only does something useful in a browser. Grounded on the
// teacher's own build-tag-gated platform stub,
// `backend/cache/cache_unsupported.go`.
package opfsfs
