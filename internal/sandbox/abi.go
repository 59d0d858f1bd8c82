package sandbox

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// Guests exchange strings with the host as a packed (ptr<<32|len) uint64,
// with the guest itself owning an `alloc`/`dealloc` export pair the host
// uses to place bytes into guest memory.

func pack(ptr, length uint32) uint64 {
	return uint64(ptr)<<32 | uint64(length)
}

func unpack(packed uint64) (ptr, length uint32) {
	return uint32(packed >> 32), uint32(packed & 0xFFFFFFFF)
}

// readGuestString reads length bytes at ptr out of mod's linear memory.
func readGuestString(mod api.Module, ptr, length uint32) (string, error) {
	if length == 0 {
		return "", nil
	}
	data, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return "", fmt.Errorf("read guest memory at offset %d (len %d)", ptr, length)
	}
	buf := make([]byte, length)
	copy(buf, data)
	return string(buf), nil
}

// writeGuestString allocates length(s) bytes in mod via its exported
// `alloc` function and copies s into it, returning the resulting pointer.
func writeGuestString(ctx context.Context, mod api.Module, s string) (uint32, error) {
	allocFn := mod.ExportedFunction("alloc")
	if allocFn == nil {
		return 0, fmt.Errorf("guest module does not export alloc()")
	}
	results, err := allocFn.Call(ctx, uint64(len(s)))
	if err != nil {
		return 0, fmt.Errorf("call alloc(%d): %w", len(s), err)
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("alloc() returned no results")
	}
	ptr := uint32(results[0])
	if len(s) > 0 && !mod.Memory().Write(ptr, []byte(s)) {
		return 0, fmt.Errorf("write %d bytes to guest memory at offset %d", len(s), ptr)
	}
	return ptr, nil
}

// writeGuestPacked allocates and writes s, returning the packed pointer the
// guest expects a host function or exported entry point to return.
func writeGuestPacked(ctx context.Context, mod api.Module, s string) (uint64, error) {
	ptr, err := writeGuestString(ctx, mod, s)
	if err != nil {
		return 0, err
	}
	return pack(ptr, uint32(len(s))), nil
}

// callPackedString calls a guest export taking no arguments and returning a
// packed (ptr, len) string result, e.g. description() or schema().
func callPackedString(ctx context.Context, mod api.Module, name string) (string, error) {
	fn := mod.ExportedFunction(name)
	if fn == nil {
		return "", fmt.Errorf("guest does not export %s()", name)
	}
	results, err := fn.Call(ctx)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", fmt.Errorf("%s() returned no results", name)
	}
	ptr, length := unpack(results[0])
	if ptr == 0 || length == 0 {
		return "", nil
	}
	return readGuestString(mod, ptr, length)
}
