// Package transform implements the field-transform pipeline: an ordered
// list of (field-selector, operation) entries applied to field bytes
// between the parser and its consumer, or between a producer and the
// writer.
package transform

// Context carries optional per-entry state for operations that need it
// (crypto key material, a custom callback). Key and IV are zeroed before
// the Context is discarded, mirroring the teacher C reference's practice
// of clearing sensitive buffers before freeing them.
type Context struct {
	Key []byte
	IV  []byte

	// Custom is invoked by the "custom" operation; errors are reported by
	// returning ok == false, in which case the field is passed through
	// unchanged.
	Custom func(field []byte) (out []byte, ok bool)

	zeroed bool
}

// Zero overwrites Key and IV in place and marks the context as cleared.
// Safe to call more than once.
func (c *Context) Zero() {
	if c == nil || c.zeroed {
		return
	}
	for i := range c.Key {
		c.Key[i] = 0
	}
	for i := range c.IV {
		c.IV[i] = 0
	}
	c.zeroed = true
}
