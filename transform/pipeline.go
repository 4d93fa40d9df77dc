package transform

import "sync"

// Operation is the well-known set of built-in field transforms. Custom
// is a hook into caller-supplied logic via the entry's Context.Custom.
type Operation int

const (
	Uppercase Operation = iota
	Lowercase
	Trim
	ToInt
	ToFloat
	Base64Encode
	Base64Decode
	HashSHA256
	Custom
)

// allFields is the selector value meaning "applies to every field",
// distinct from any valid zero-based field index.
const allFields = -1

// TransformEntry is one (selector, operation) pair in a Pipeline.
type TransformEntry struct {
	FieldIndex int // zero-based field index, or allFields
	Op         Operation
	Ctx        *Context
}

// FieldIndex is the derived lookup structure used by Apply: for each
// concrete field index, an ordered list of entry indices to run, plus a
// separate ordered list of entry indices that apply to every field.
// Rebuilt lazily whenever Pipeline.Add invalidates it.
type FieldIndex struct {
	global   []int
	perField map[int][]int
}

// Pipeline is an ordered list of transform entries with a derived
// FieldIndex for O(1) field lookup during Apply. It is not safe for
// concurrent mutation; concurrent Apply calls are safe only once no
// further Add/SetHeader call will occur, since those mutate the pipeline.
type Pipeline struct {
	entries []TransformEntry
	header  *HeaderMap

	dirty bool
	idx   FieldIndex
}

// New returns an empty Pipeline.
func New() *Pipeline {
	return &Pipeline{}
}

// Add appends an entry applying op to fieldIndex (use -1 or AllFields for
// every field). It rebuilds the derived index.
func (p *Pipeline) Add(fieldIndex int, op Operation, ctx *Context) {
	p.entries = append(p.entries, TransformEntry{FieldIndex: fieldIndex, Op: op, Ctx: ctx})
	p.rebuildIndex()
}

// AllFields is the selector meaning "every field".
const AllFields = allFields

// AddByName resolves name via the pipeline's HeaderMap and adds an entry
// for that field. It reports an error if SetHeader was never called or
// name is not present.
func (p *Pipeline) AddByName(name string, op Operation, ctx *Context) error {
	if p.header == nil {
		return ErrNoHeader
	}
	idx, ok := p.header.Lookup(name)
	if !ok {
		return ErrFieldNotFound
	}
	p.Add(idx, op, ctx)
	return nil
}

// SetHeader replaces the stored header names and rebuilds the HeaderMap.
func (p *Pipeline) SetHeader(names []string) {
	p.header = NewHeaderMap(names)
}

// rebuildIndex groups entries into global and per-field lookup lists,
// preserving insertion order within each list.
func (p *Pipeline) rebuildIndex() {
	p.idx.global = p.idx.global[:0]
	if p.idx.perField == nil {
		p.idx.perField = make(map[int][]int)
	} else {
		for k := range p.idx.perField {
			delete(p.idx.perField, k)
		}
	}

	for i, e := range p.entries {
		if e.FieldIndex == allFields {
			p.idx.global = append(p.idx.global, i)
		} else {
			p.idx.perField[e.FieldIndex] = append(p.idx.perField[e.FieldIndex], i)
		}
	}
	p.dirty = false
}

// Apply runs every matching entry against data in order: all global
// entries first, then all per-field entries for fieldIndex. If no entry
// matches, it returns a borrowed Result aliasing data.
func (p *Pipeline) Apply(fieldIndex int, data []byte) Result {
	if p.dirty {
		p.rebuildIndex()
	}
	if len(p.idx.global) == 0 && len(p.idx.perField[fieldIndex]) == 0 {
		return borrowed(data)
	}

	current := borrowed(data)
	apply := func(entryIdx int) {
		e := p.entries[entryIdx]
		next := applyOp(e.Op, current.Bytes, e.Ctx)
		if current.Owned && current.Bytes != nil && !sameBacking(current.Bytes, next.Bytes) {
			current.Release()
		}
		current = next
	}

	for _, idx := range p.idx.global {
		apply(idx)
	}
	for _, idx := range p.idx.perField[fieldIndex] {
		apply(idx)
	}
	return current
}

// sameBacking reports whether a and b are the same slice (identical
// backing array and offset), used to decide whether a previous owned
// buffer was merely passed through unchanged.
func sameBacking(a, b []byte) bool {
	return len(a) == len(b) && cap(a) == cap(b) && (len(a) == 0 || &a[0] == &b[0])
}

// Close releases the pipeline's entry contexts, zeroing any sensitive
// key/IV material before they become unreachable.
func (p *Pipeline) Close() {
	for i := range p.entries {
		if p.entries[i].Ctx != nil {
			p.entries[i].Ctx.Zero()
		}
	}
}

// =============================================================================
// HeaderMap — FNV-1a open-addressed, linear-probed name -> field index
// =============================================================================

type headerSlot struct {
	name  string
	index int
	used  bool
}

// HeaderMap maps a header name to its zero-based field index using an
// open-addressed table sized to the next power of two at least 2x the
// field count, matching the teacher C reference's build_header_hash_table.
type HeaderMap struct {
	slots []headerSlot
	mask  uint64
}

// NewHeaderMap builds a HeaderMap from an ordered list of header names.
func NewHeaderMap(names []string) *HeaderMap {
	size := nextPow2(len(names) * 2)
	if size < 4 {
		size = 4
	}
	hm := &HeaderMap{
		slots: make([]headerSlot, size),
		mask:  uint64(size - 1),
	}
	for i, name := range names {
		hm.insert(name, i)
	}
	return hm
}

func (hm *HeaderMap) insert(name string, index int) {
	h := fnv1a(name) & hm.mask
	for {
		slot := &hm.slots[h]
		if !slot.used {
			slot.name = name
			slot.index = index
			slot.used = true
			return
		}
		if slot.name == name {
			slot.index = index // later header with the same name wins
			return
		}
		h = (h + 1) & hm.mask
	}
}

// Lookup returns the field index for name, or (0, false) if absent.
func (hm *HeaderMap) Lookup(name string) (int, bool) {
	h := fnv1a(name) & hm.mask
	for i := uint64(0); i <= hm.mask; i++ {
		slot := &hm.slots[h]
		if !slot.used {
			return 0, false
		}
		if slot.name == name {
			return slot.index, true
		}
		h = (h + 1) & hm.mask
	}
	return 0, false
}

// fnv1a computes the 64-bit FNV-1a hash of s.
func fnv1a(s string) uint64 {
	const (
		offsetBasis = 14695981039346656037
		prime       = 1099511628211
	)
	h := uint64(offsetBasis)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	return h
}

// nextPow2 returns the smallest power of two >= n.
func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// =============================================================================
// Buffer pool — reused scratch buffers for owned transform results
// =============================================================================

var bufferPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, 0, 256)
		return &b
	},
}

// acquireBuffer returns a pooled []byte with at least the requested
// capacity, truncated to length 0.
func acquireBuffer(capHint int) []byte {
	bp := bufferPool.Get().(*[]byte)
	buf := *bp
	if cap(buf) < capHint {
		buf = make([]byte, 0, capHint)
	} else {
		buf = buf[:0]
	}
	return buf
}

// releaseBuffer returns buf to the pool for reuse.
func releaseBuffer(buf []byte) {
	buf = buf[:0]
	bufferPool.Put(&buf)
}
