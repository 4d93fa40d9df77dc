package transform

// Result is the outcome of applying an operation to field bytes. When
// Owned is true, Bytes was freshly allocated by the pipeline and the
// caller must eventually call Release; when false, Bytes aliases memory
// the pipeline does not own (the original input, or a borrowed buffer
// from an earlier stage) and must not be released or retained past the
// caller's own use of the source.
type Result struct {
	Bytes []byte
	Owned bool
}

// Release returns r's backing buffer to the pool it came from, if any. It
// is a no-op for a borrowed result. Callers must not use r.Bytes after
// calling Release.
func (r Result) Release() {
	if !r.Owned || r.Bytes == nil {
		return
	}
	releaseBuffer(r.Bytes)
}

// borrowed wraps data as a non-owned Result.
func borrowed(data []byte) Result {
	return Result{Bytes: data, Owned: false}
}

// owned wraps data as an owned Result backed by the pipeline's pool.
func owned(data []byte) Result {
	return Result{Bytes: data, Owned: true}
}
