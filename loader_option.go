package splitasset

type LoaderOption func(l *Loader)

// WithWASMName overrides the runtime binary file name.
func WithWASMName(name string) LoaderOption {
	return func(l *Loader) {
		if name != "" {
			l.wasmName = name
		}
	}
}

// WithDataName overrides the data segment file name.
func WithDataName(name string) LoaderOption {
	return func(l *Loader) {
		if name != "" {
			l.dataName = name
		}
	}
}
