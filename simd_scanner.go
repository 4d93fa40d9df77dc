package veloxcsv

import (
	"math/bits"
	"runtime"
	"sync"

	"golang.org/x/sys/cpu"
)

// =============================================================================
// Scan Tier Selection
// =============================================================================
//
// Component B (spec §4.B) asks for the largest vector width the target
// supports: 64 bytes on AVX-512, 32 on AVX2, 16 on NEON, with a scalar
// fallback below the threshold. Rather than hand-written assembly per ISA
// (which this module can't verify without running the toolchain), the wide
// path below is a portable SWAR (SIMD-within-a-register) implementation:
// it tests 8 bytes at a time against a broadcast target using the classic
// "has zero byte" bit trick, and only falls through to a true per-byte scan
// for the 8-byte words that test positive. This gives the same "skip ahead
// over uninteresting bytes in bulk" property real vector code has, without
// depending on an experimental compiler feature or unverifiable assembly.
//
// useWideScan records whether the current CPU is in the tier this module
// considers worth the wide path (AVX2/AVX-512-capable amd64, or arm64 where
// NEON is always present). It only selects between the SWAR mask generator
// and the per-byte one; chunks are always simdChunkSize (64) bytes, there
// is no 32- or 16-byte tier, and the mask values are identical either way.
// =============================================================================

// SIMD processing constants.
const (
	// simdChunkSize is the number of bytes processed per wide-scan iteration.
	simdChunkSize = 64

	// simdHalfChunk is the size of a half chunk.
	simdHalfChunk = 32

	// simdMinThreshold is the minimum data size for the wide path to be beneficial.
	simdMinThreshold = 32

	// avgFieldLenEstimate is the estimated average field length for capacity pre-allocation.
	avgFieldLenEstimate = 15

	// avgRowLenEstimate is the estimated average row length for capacity pre-allocation.
	avgRowLenEstimate = 80

	// swarLanes is the number of 8-byte SWAR words per simdChunkSize chunk.
	swarLanes = simdChunkSize / 8
)

var useWideScan bool

func init() {
	useWideScan = (cpu.X86.HasAVX512F && cpu.X86.HasAVX512BW && cpu.X86.HasAVX512VL) ||
		cpu.X86.HasAVX2 || runtime.GOARCH == "arm64"
}

// shouldUseSIMD returns true if the wide scan path should be used for the
// given data length. Centralises the eligibility check used across scanner
// and writer.
func shouldUseSIMD(dataLen int) bool {
	return useWideScan && dataLen >= simdMinThreshold
}

// scanState holds state carried between chunks during SIMD scanning.
type scanState struct {
	quoted        uint64 // Quote state flag (0=outside, ^0=inside)
	skipNextQuote bool   // Skip quote at next chunk start (for boundary double quotes)
}

// scanResult represents the result of SIMD scanning (bitmasks for structural characters).
type scanResult struct {
	quoteMasks     []uint64 // Quote masks per chunk
	separatorMasks []uint64 // Separator masks per chunk
	newlineMasks   []uint64 // Newline masks per chunk (CRLF normalized)
	chunkHasDQ     []bool   // Per-chunk flag: true if chunk contains escaped double quotes
	chunkHasQuote  []bool   // Per-chunk flag: true if chunk contains any quote byte
	hasQuotes      bool     // True if any quote characters exist in input
	finalQuoted    uint64   // Final quote state
	chunkCount     int      // Number of processed chunks
	lastChunkBits  int      // Valid bits in last chunk (if < 64)
	hasCR          bool     // True if any bare CR exists in input
	separatorCount int      // Total separators found (for capacity estimation)
	newlineCount   int      // Total newlines found (for capacity estimation)
}

// scanResultPoolCapacity is the pre-allocated slice capacity for pooled scanResult objects.
// 1024 chunks = ~64KB input (1024 * 64 bytes per chunk).
const scanResultPoolCapacity = 1024

// scanResultPool provides reusable scanResult objects to reduce allocations.
var scanResultPool = sync.Pool{
	New: func() interface{} {
		return &scanResult{
			quoteMasks:     make([]uint64, 0, scanResultPoolCapacity),
			separatorMasks: make([]uint64, 0, scanResultPoolCapacity),
			newlineMasks:   make([]uint64, 0, scanResultPoolCapacity),
			chunkHasDQ:     make([]bool, 0, scanResultPoolCapacity),
			chunkHasQuote:  make([]bool, 0, scanResultPoolCapacity),
		}
	},
}

// reset clears the scanResult for reuse while preserving underlying slice capacity.
func (sr *scanResult) reset() {
	sr.quoteMasks = sr.quoteMasks[:0]
	sr.separatorMasks = sr.separatorMasks[:0]
	sr.newlineMasks = sr.newlineMasks[:0]
	if cap(sr.chunkHasDQ) > 0 {
		sr.chunkHasDQ = sr.chunkHasDQ[:0]
	}
	if cap(sr.chunkHasQuote) > 0 {
		sr.chunkHasQuote = sr.chunkHasQuote[:0]
	}
	sr.hasQuotes = false
	sr.finalQuoted = 0
	sr.chunkCount = 0
	sr.lastChunkBits = 0
	sr.hasCR = false
	sr.separatorCount = 0
	sr.newlineCount = 0
}

// releaseScanResult returns a scanResult to the pool for reuse.
// The caller must not use the scanResult after calling this function.
func releaseScanResult(sr *scanResult) {
	if sr != nil {
		sr.reset()
		scanResultPool.Put(sr)
	}
}

// =============================================================================
// SWAR mask generation
// =============================================================================

const (
	swarOnes = 0x0101010101010101
	swarHigh = 0x8080808080808080
)

// broadcast8 replicates b into every byte lane of a uint64.
func broadcast8(b byte) uint64 {
	return swarOnes * uint64(b)
}

// hasZeroLane reports whether any byte lane of v is zero, using the
// classic bit-twiddling "haszero" trick.
func hasZeroLane(v uint64) bool {
	return (v-swarOnes)&^v&swarHigh != 0
}

// prefixXOR computes, for every bit i of mask, the running XOR of bits
// 0..i: out_i = mask_0 ^ mask_1 ^ ... ^ mask_i. Applied to a mask of quote
// bytes it yields the "currently inside a quoted span" mask in one pass
// instead of a per-bit walk. This is the standard shift/xor doubling
// construction real SIMD parsers implement with a carry-less multiply by
// all-ones; it is portable and produces the identical result.
func prefixXOR(mask uint64) uint64 {
	mask ^= mask << 1
	mask ^= mask << 2
	mask ^= mask << 4
	mask ^= mask << 8
	mask ^= mask << 16
	mask ^= mask << 32
	return mask
}

// generateMasksWide generates 4 types of masks from a simdChunkSize-byte
// chunk using 8-byte SWAR lanes, skipping lanes that contain none of the
// four target bytes in bulk.
// Precondition: data is at least simdChunkSize bytes.
func generateMasksWide(data []byte, separator byte) (quote, sep, cr, nl uint64) {
	quoteB := broadcast8('"')
	sepB := broadcast8(separator)
	crB := broadcast8('\r')
	nlB := broadcast8('\n')

	for lane := 0; lane < swarLanes; lane++ {
		off := lane * 8
		word := le64(data[off : off+8])

		qx := word ^ quoteB
		sx := word ^ sepB
		cx := word ^ crB
		nx := word ^ nlB

		if !hasZeroLane(qx) && !hasZeroLane(sx) && !hasZeroLane(cx) && !hasZeroLane(nx) {
			continue
		}

		for k := 0; k < 8; k++ {
			b := data[off+k]
			bit := uint64(1) << (off + k)
			switch b {
			case '"':
				quote |= bit
			case separator:
				sep |= bit
			case '\r':
				cr |= bit
			case '\n':
				nl |= bit
			}
		}
	}
	return
}

// le64 reads 8 bytes as a little-endian uint64.
func le64(b []byte) uint64 {
	_ = b[7]
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
}

// generateMasksScalar generates masks using a plain per-byte scan.
// This is the fallback implementation used when useWideScan is false.
// Spec §4.A: "the classifier
// is consulted only on the scalar tail of each chunk; vectorised scanning
// uses direct byte-equality comparisons against broadcast registers" — so
// this is the one mask-generation path that goes through the component A
// table rather than comparing against each structural byte directly.
// Precondition: data is at least simdChunkSize bytes.
func generateMasksScalar(data []byte, separator byte) (quote, sep, cr, nl uint64) {
	cl := getClassifier(separator, '"')
	for i := 0; i < simdChunkSize; i++ {
		b := data[i]
		bit := uint64(1) << i
		if cl.isQuote(b) {
			quote |= bit
		}
		if cl.isDelim(b) {
			sep |= bit
		}
		if cl.isCR(b) {
			cr |= bit
		}
		if cl.isLF(b) {
			nl |= bit
		}
	}
	return
}

// generateMasks generates masks from a simdChunkSize-byte chunk.
// Precondition: data is at least simdChunkSize bytes.
func generateMasks(data []byte, separator byte) (quote, sep, cr, nl uint64) {
	if useWideScan {
		return generateMasksWide(data, separator)
	}
	return generateMasksScalar(data, separator)
}

// generateMasksPadded processes chunks smaller than simdChunkSize bytes.
// It copies data to a simdChunkSize-byte buffer (stack allocated), generates masks,
// then masks off invalid bits beyond the actual data length.
// Returns masks only for valid bytes (remaining bits are 0).
func generateMasksPadded(data []byte, separator byte) (quote, sep, cr, nl uint64, validBits int) {
	validBits = len(data)
	if validBits == 0 {
		return 0, 0, 0, 0, 0
	}

	// Create a simdChunkSize-byte padded buffer on the stack
	var padded [simdChunkSize]byte
	copy(padded[:], data)
	// Remaining bytes are zero (won't match any structural characters)

	// Generate masks from the padded buffer
	quote, sep, cr, nl = generateMasks(padded[:], separator)

	// Mask off bits beyond valid data
	if validBits < simdChunkSize {
		mask := (uint64(1) << validBits) - 1
		quote &= mask
		sep &= mask
		cr &= mask
		nl &= mask
	}

	return
}

// processQuotesAndSeparators processes quote and separator masks to handle:
// - Quote state tracking (inside/outside quoted regions)
// - Invalidating separators inside quotes (newlines are handled by
//   invalidateNewlinesInQuotes)
// - Detecting double quotes ("") for escaping
// - Detecting boundary double quotes (quote at position 63 with quote at position 0 of next chunk)
//
// Returns:
// - quoteMaskOut: adjusted quote mask with escaped double quotes removed
// - sepMaskOut: separator mask with separators inside quotes removed
// - hasDoubleQuote: true if this chunk contains escaped double quotes (needs post-processing)
// - boundaryDoubleQuote: true if there's a double quote spanning chunk boundary
func processQuotesAndSeparators(quoteMask, sepMask, newlineMask, nextQuoteMask uint64, state *scanState) (quoteMaskOut, sepMaskOut uint64, hasDoubleQuote, boundaryDoubleQuote bool) {
	quoteMaskOut = quoteMask
	sepMaskOut = sepMask

	workQuoteMask := quoteMask
	workSepMask := sepMask
	workNewlineMask := newlineMask
	quoted := state.quoted

	for {
		quotePos := bits.TrailingZeros64(workQuoteMask)
		sepPos := bits.TrailingZeros64(workSepMask)
		nlPos := bits.TrailingZeros64(workNewlineMask)

		minPos := minOfThree(quotePos, sepPos, nlPos)
		if minPos >= simdChunkSize {
			break
		}

		switch minPos {
		case quotePos:
			// Process quote character (inlined for simplicity)
			if quoted != 0 {
				// Inside quoted region - check for escape sequences
				if quotePos == simdChunkSize-1 && nextQuoteMask&1 != 0 {
					// Boundary double quote
					quoteMaskOut &= ^(uint64(1) << (simdChunkSize - 1))
					hasDoubleQuote = true
					boundaryDoubleQuote = true
				} else if quotePos < simdChunkSize-1 && workQuoteMask&(uint64(1)<<(quotePos+1)) != 0 {
					// Adjacent double quote within chunk
					quoteMaskOut &= ^(uint64(3) << quotePos)
					hasDoubleQuote = true
					workQuoteMask &= ^(uint64(1) << (quotePos + 1))
				} else {
					quoted = 0 // Closing quote
				}
			} else {
				quoted = ^uint64(0) // Opening quote
			}
			workQuoteMask &= ^(uint64(1) << quotePos)
		case sepPos:
			if quoted != 0 {
				sepMaskOut &= ^(uint64(1) << sepPos)
			}
			workSepMask &= ^(uint64(1) << sepPos)
		default:
			workNewlineMask &= ^(uint64(1) << nlPos)
		}
	}

	state.quoted = quoted
	return quoteMaskOut, sepMaskOut, hasDoubleQuote, boundaryDoubleQuote
}

// minOfThree returns the minimum of three integers.
func minOfThree(a, b, c int) int {
	if a <= b && a <= c {
		return a
	}
	if b <= c {
		return b
	}
	return c
}

// chunkMasks holds the four mask types for a single chunk.
type chunkMasks struct {
	quote uint64
	sep   uint64
	cr    uint64
	nl    uint64
}

// scanBuffer processes the entire buffer in simdChunkSize-byte chunks.
// It generates structural character masks and handles:
// - CRLF normalization (CRLF pairs are normalized to LF only in output)
// - Quote state tracking across chunk boundaries
// - Boundary double quote detection (quotes spanning chunks)
// - Recording chunks that need post-processing for double quote unescaping
func scanBuffer(buf []byte, separatorChar byte) *scanResult {
	if len(buf) == 0 {
		return &scanResult{}
	}

	chunkCount := (len(buf) + simdChunkSize - 1) / simdChunkSize

	// Get a scanResult from the pool and reset it for reuse
	result := scanResultPool.Get().(*scanResult)
	result.reset()
	result.chunkCount = chunkCount

	// Pre-size all mask slices to chunkCount for index-based assignment (avoids append overhead)
	// When capacity is insufficient, grow by 2x to reduce future reallocations
	if cap(result.quoteMasks) < chunkCount {
		newCap := chunkCount
		if newCap < cap(result.quoteMasks)*2 {
			newCap = cap(result.quoteMasks) * 2
		}
		result.quoteMasks = make([]uint64, chunkCount, newCap)
	} else {
		result.quoteMasks = result.quoteMasks[:chunkCount]
	}
	if cap(result.separatorMasks) < chunkCount {
		newCap := chunkCount
		if newCap < cap(result.separatorMasks)*2 {
			newCap = cap(result.separatorMasks) * 2
		}
		result.separatorMasks = make([]uint64, chunkCount, newCap)
	} else {
		result.separatorMasks = result.separatorMasks[:chunkCount]
	}
	if cap(result.newlineMasks) < chunkCount {
		newCap := chunkCount
		if newCap < cap(result.newlineMasks)*2 {
			newCap = cap(result.newlineMasks) * 2
		}
		result.newlineMasks = make([]uint64, chunkCount, newCap)
	} else {
		result.newlineMasks = result.newlineMasks[:chunkCount]
	}
	if cap(result.chunkHasDQ) < chunkCount {
		newCap := chunkCount
		if newCap < cap(result.chunkHasDQ)*2 {
			newCap = cap(result.chunkHasDQ) * 2
		}
		result.chunkHasDQ = make([]bool, chunkCount, newCap)
	} else {
		result.chunkHasDQ = result.chunkHasDQ[:chunkCount]
		// Clear the slice (reset only truncates, doesn't zero)
		for i := range result.chunkHasDQ {
			result.chunkHasDQ[i] = false
		}
	}
	if cap(result.chunkHasQuote) < chunkCount {
		newCap := chunkCount
		if newCap < cap(result.chunkHasQuote)*2 {
			newCap = cap(result.chunkHasQuote) * 2
		}
		result.chunkHasQuote = make([]bool, chunkCount, newCap)
	} else {
		result.chunkHasQuote = result.chunkHasQuote[:chunkCount]
		for i := range result.chunkHasQuote {
			result.chunkHasQuote[i] = false
		}
	}

	state := scanState{}

	// Pre-compute masks for chunk 0 (current) and chunk 1 (next) to avoid double calculation
	var curMasks, nextMasks chunkMasks
	var curValidBits int

	// Generate masks for chunk 0
	if len(buf) >= simdChunkSize {
		curMasks.quote, curMasks.sep, curMasks.cr, curMasks.nl = generateMasks(buf[0:simdChunkSize], separatorChar)
		curValidBits = simdChunkSize
	} else {
		curMasks.quote, curMasks.sep, curMasks.cr, curMasks.nl, curValidBits = generateMasksPadded(buf, separatorChar)
		result.lastChunkBits = curValidBits
	}

	// Generate masks for chunk 1 (lookahead) if it exists
	// Note: chunkCount > 1 implies len(buf) > simdChunkSize, so buf[simdChunkSize:] is safe
	if chunkCount > 1 && len(buf) > simdChunkSize {
		if len(buf) >= 2*simdChunkSize {
			nextMasks.quote, nextMasks.sep, nextMasks.cr, nextMasks.nl = generateMasks(buf[simdChunkSize:2*simdChunkSize], separatorChar)
		} else {
			var nextValidBits int
			nextMasks.quote, nextMasks.sep, nextMasks.cr, nextMasks.nl, nextValidBits = generateMasksPadded(buf[simdChunkSize:], separatorChar)
			// If chunk 1 is the last chunk, set lastChunkBits
			if chunkCount == 2 {
				result.lastChunkBits = nextValidBits
			}
		}
	}

	for chunkIdx := 0; chunkIdx < chunkCount; chunkIdx++ {
		// Use pre-computed masks
		quoteMask := curMasks.quote
		sepMask := curMasks.sep
		crMask := curMasks.cr
		nlMask := curMasks.nl
		validBits := curValidBits

		// Lookahead masks are already in nextMasks
		nextQuoteMask := nextMasks.quote
		nextNlMask := nextMasks.nl

		// Handle boundary double quote from previous chunk
		// If previous chunk ended with a quote that's part of a double quote sequence,
		// skip the first quote of this chunk
		if state.skipNextQuote && quoteMask&1 != 0 {
			quoteMask &= ^uint64(1) // Skip the first quote
		}
		state.skipNextQuote = false

		// CRLF normalization:
		// For CRLF pairs within this chunk, we want only the LF to appear in newlineMask
		// CR followed by LF at positions i and i+1 should result in only bit i+1 set
		newlineMaskOut := nlMask

		// Find CRLF pairs: CR at position i, LF at position i+1
		// crMask & (nlMask >> 1) gives us CRs that are followed by LF
		crlfPairs := crMask & (nlMask >> 1)

		// Isolated CRs (CR not followed by LF) should be treated as newlines
		isolatedCRs := crMask & ^crlfPairs
		newlineMaskOut |= isolatedCRs
		if isolatedCRs != 0 {
			result.hasCR = true
		}

		// Handle CR at position 63 (may be part of boundary CRLF)
		if validBits == simdChunkSize && crMask&(1<<63) != 0 {
			if nextNlMask&1 != 0 {
				// Boundary CRLF: CR at 63, LF at next chunk's 0
				// Remove this CR from newline mask (next chunk's LF will be the delimiter)
				newlineMaskOut &= ^(uint64(1) << 63)
			} else {
				// Isolated CR at position 63: treat as newline
				newlineMaskOut |= uint64(1) << 63
				result.hasCR = true
			}
		}

		// Save the initial quoted state for newline invalidation
		initialQuoted := state.quoted

		// Process quotes and separators, invalidating those inside quoted regions
		quoteMaskOut, sepMaskOut, hasDoubleQuote, boundaryDoubleQuote := processQuotesAndSeparators(
			quoteMask, sepMask, newlineMaskOut, nextQuoteMask, &state,
		)

		// If there's a boundary double quote, the next chunk should skip its first quote
		if boundaryDoubleQuote {
			state.skipNextQuote = true
		}

		// Save end state and restore initial state for newline processing
		endQuoted := state.quoted
		state.quoted = initialQuoted

		// Invalidate newlines inside quoted regions using the processed quote mask
		// (with double quotes removed) and the initial state
		newlineMaskOut = invalidateNewlinesInQuotes(quoteMaskOut, newlineMaskOut, &state)

		// Restore end state for the next chunk
		state.quoted = endQuoted

		// Store results using index assignment (pre-sized slices)
		result.quoteMasks[chunkIdx] = quoteMaskOut
		result.separatorMasks[chunkIdx] = sepMaskOut
		result.newlineMasks[chunkIdx] = newlineMaskOut

		// Track if any quotes exist in the input (for fast path optimization)
		if quoteMaskOut != 0 {
			result.hasQuotes = true
		}

		result.separatorCount += bits.OnesCount64(sepMaskOut)
		result.newlineCount += bits.OnesCount64(newlineMaskOut)

		// Record chunks that have double quotes (using bool array instead of []int)
		if hasDoubleQuote {
			result.chunkHasDQ[chunkIdx] = true
		}

		// Record chunks that contain any quote byte, for validation's fast path.
		if quoteMask != 0 {
			result.chunkHasQuote[chunkIdx] = true
		}

		// Slide masks: current = next, compute new next for chunkIdx+2
		curMasks = nextMasks
		curValidBits = simdChunkSize // next chunk was full unless it's the last

		nextChunkIdx := chunkIdx + 2
		if nextChunkIdx < chunkCount {
			nextOffset := nextChunkIdx * simdChunkSize
			remaining := len(buf) - nextOffset
			if remaining >= simdChunkSize {
				nextMasks.quote, nextMasks.sep, nextMasks.cr, nextMasks.nl = generateMasks(buf[nextOffset:nextOffset+simdChunkSize], separatorChar)
			} else {
				nextMasks.quote, nextMasks.sep, nextMasks.cr, nextMasks.nl, curValidBits = generateMasksPadded(buf[nextOffset:], separatorChar)
				result.lastChunkBits = curValidBits
				// curValidBits is for the NEXT iteration's current chunk
			}
		} else {
			// No more chunks after next iteration
			nextMasks = chunkMasks{}
			// Check if next iteration is the last chunk and needs partial bits
			if chunkIdx+1 == chunkCount-1 && len(buf)%simdChunkSize != 0 {
				curValidBits = len(buf) % simdChunkSize
				result.lastChunkBits = curValidBits
			}
		}
	}

	result.finalQuoted = state.quoted

	return result
}

// invalidateNewlinesInQuotes removes newline bits that are inside quoted regions.
func invalidateNewlinesInQuotes(quoteMask, newlineMask uint64, state *scanState) uint64 {
	quoted := state.quoted
	result := newlineMask
	workQuoteMask := quoteMask
	workNewlineMask := newlineMask

	for workQuoteMask != 0 || workNewlineMask != 0 {
		quotePos := bits.TrailingZeros64(workQuoteMask)
		nlPos := bits.TrailingZeros64(workNewlineMask)

		if quotePos >= 64 && nlPos >= 64 {
			break
		}

		if quotePos < nlPos {
			// Toggle quote state
			if quoted != 0 {
				quoted = 0
			} else {
				quoted = ^uint64(0)
			}
			workQuoteMask &= ^(uint64(1) << quotePos)
		} else {
			if quoted != 0 {
				result &= ^(uint64(1) << nlPos)
			}
			workNewlineMask &= ^(uint64(1) << nlPos)
		}
	}

	return result
}
