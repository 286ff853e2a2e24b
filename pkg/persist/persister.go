package persist

// Persister binds a snapshot type to a codec and file basename so callers
// export and restore through typed closures instead of repeating the
// path/codec plumbing at every call site.
type Persister[T any] struct {
	basename string
	codec    Codec
}

// NewPersister creates a persister for snapshots stored as basename plus
// the codec's extension.
func NewPersister[T any](basename string, codec Codec) *Persister[T] {
	return &Persister[T]{
		basename: basename,
		codec:    codec,
	}
}

// Save builds the snapshot via buildState and writes it into dir.
func (p *Persister[T]) Save(dir string, buildState func() *T) error {
	return SaveState(dir, p.basename, p.codec, buildState())
}

// Load reads the snapshot from dir and hands it to restoreState.
func (p *Persister[T]) Load(dir string, restoreState func(*T)) error {
	var state T

	err := LoadState(dir, p.basename, p.codec, &state)
	if err != nil {
		return err
	}

	restoreState(&state)

	return nil
}
