package bm

import "io"

// NewWriteNative builds the "write" built-in native named in spec §6:
// pop count, pop address, write count bytes from memory[address..] to
// sink. Any write error is surfaced as ErrIllegalMemoryAccess rather
// than leaking the sink's own error type across the native ABI.
func NewWriteNative(sink io.Writer) Native {
	return func(vm *BM) error {
		countW, err := vm.pop()
		if err != nil {
			return err
		}
		addrW, err := vm.pop()
		if err != nil {
			return err
		}
		count := countW.Uint64()
		addr := addrW.Uint64()

		if addr+count > uint64(len(vm.Memory)) {
			return ErrIllegalMemoryAccess
		}

		if _, err := sink.Write(vm.Memory[addr : addr+count]); err != nil {
			return ErrIllegalMemoryAccess
		}
		return nil
	}
}

// ResolveNatives maps the image's external name table onto a caller
// supplied registry of built-ins plus native-object symbols. An
// unresolved name is fatal at load time (spec §6).
func ResolveNatives(externals []string, registry map[string]Native) ([]Native, error) {
	natives := make([]Native, len(externals))
	for i, name := range externals {
		fn, ok := registry[name]
		if !ok {
			return nil, &UnresolvedNativeError{Name: name}
		}
		natives[i] = fn
	}
	return natives, nil
}

// UnresolvedNativeError reports a native name present in an image's
// external table with no matching symbol in the loader's registry.
type UnresolvedNativeError struct {
	Name string
}

func (e *UnresolvedNativeError) Error() string {
	return "bm: unresolved native: " + e.Name
}
