//go:build (darwin || linux) && !nodevices

// Shared utilities for the purego-based capture providers.

package camera

import (
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/ebitengine/purego"
)

// goStringFromPtr converts a C string pointer to a Go string.
func goStringFromPtr(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	// Find string length
	p := unsafe.Pointer(ptr)
	var length int
	for {
		if *(*byte)(unsafe.Pointer(uintptr(p) + uintptr(length))) == 0 {
			break
		}
		length++
		if length > 1024 { // Safety limit
			break
		}
	}
	if length == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(p), length))
}

// cString returns a NUL-terminated copy of s. The caller must keep the
// returned slice alive for as long as the pointer is in use.
func cString(s string) []byte {
	return append([]byte(s), 0)
}

// cStringPtr returns the address of a cString result, or 0 for nil.
func cStringPtr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

// bytesAt returns n bytes of native memory starting at ptr.
func bytesAt(ptr uintptr, n int) []byte {
	if ptr == 0 || n <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(ptr)), n)
}

// nativeFunc binds the exported symbol name to the Go function pointer fn.
type nativeFunc struct {
	name string
	fn   any
}

// loadNativeLibrary opens the wrapper at path, checks that abiSymbol
// reports abiVersion and binds every function in funcs. Nothing is bound
// and the library is closed unless all symbols resolve.
func loadNativeLibrary(path, abiSymbol string, abiVersion int32, funcs []nativeFunc) (uintptr, error) {
	lib, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return 0, fmt.Errorf("failed to load %s: %w", path, err)
	}

	addr, err := purego.Dlsym(lib, abiSymbol)
	if err != nil {
		purego.Dlclose(lib)
		return 0, fmt.Errorf("%s: missing ABI version symbol %s: %w", path, abiSymbol, err)
	}
	var version func() int32
	purego.RegisterFunc(&version, addr)
	if v := version(); v != abiVersion {
		purego.Dlclose(lib)
		return 0, fmt.Errorf("%s: ABI version %d, want %d", path, v, abiVersion)
	}

	if err := bindNativeFuncs(lib, funcs); err != nil {
		purego.Dlclose(lib)
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return lib, nil
}

// bindNativeFuncs resolves every symbol before registering any of them, so
// a library missing one symbol leaves all function pointers untouched.
func bindNativeFuncs(lib uintptr, funcs []nativeFunc) error {
	addrs := make([]uintptr, len(funcs))
	for i, f := range funcs {
		addr, err := purego.Dlsym(lib, f.name)
		if err != nil {
			return fmt.Errorf("missing symbol %s: %w", f.name, err)
		}
		addrs[i] = addr
	}
	for i, f := range funcs {
		purego.RegisterFunc(f.fn, addrs[i])
	}
	return nil
}

// findLibrary searches for a native wrapper library in common locations.
func findLibrary(libName string, extraDirs ...string) string {
	searchPaths := []string{
		os.Getenv("CAMERA_LIB_PATH"),
	}
	searchPaths = append(searchPaths, extraDirs...)

	// Add relative paths
	if exe, err := os.Executable(); err == nil {
		searchPaths = append(searchPaths, filepath.Dir(exe))
	}
	searchPaths = append(searchPaths,
		"build",
		"build/ffi",
		"../build",
		"../build/ffi",
		"../../build",
		"../../build/ffi",
		"/usr/local/lib",
		"/usr/lib",
	)

	for _, p := range searchPaths {
		if p == "" {
			continue
		}
		candidate := filepath.Join(p, libName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return ""
}
