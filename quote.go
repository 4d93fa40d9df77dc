package veloxcsv

// skipLeadingWhitespace returns the number of leading whitespace bytes (space or tab).
func skipLeadingWhitespace(data []byte) int {
	i := 0
	for i < len(data) && (data[i] == ' ' || data[i] == '\t') {
		i++
	}
	return i
}

// isQuotedFieldStart checks if data starts with a quote, optionally after whitespace.
// Returns (isQuoted, quoteOffset) where quoteOffset is the position of the opening quote.
func isQuotedFieldStart(data []byte, trimLeadingSpace bool) (bool, int) {
	if len(data) == 0 {
		return false, 0
	}

	// Direct quote at start
	if data[0] == '"' {
		return true, 0
	}

	// Check for whitespace followed by quote if trimming is enabled
	if trimLeadingSpace {
		offset := skipLeadingWhitespace(data)
		if offset > 0 && offset < len(data) && data[offset] == '"' {
			return true, offset
		}
	}

	return false, 0
}

// findClosingQuote finds the closing quote in a quoted field.
// Returns the index of the closing quote, or -1 if not found.
// Handles escaped double quotes (""). Dispatches to the wide or scalar
// implementation by input size and CPU tier, mirroring simd_scanner.go.
func findClosingQuote(data []byte, startAfterOpenQuote int) int {
	if useWideScan && len(data)-startAfterOpenQuote >= simdMinThreshold {
		return findClosingQuoteWide(data, startAfterOpenQuote)
	}
	return findClosingQuoteScalar(data, startAfterOpenQuote)
}

// findClosingQuoteScalar is the byte-at-a-time reference implementation.
// The per-byte test goes through the component A classifier table (spec
// §4.A), matching its "consulted only on the scalar tail" contract; the
// delimiter half of the table's key is irrelevant to an isQuote lookup, so
// this reuses the reserved NUL-delimiter classifier rather than plumbing
// the active delimiter through a quote-only scan.
func findClosingQuoteScalar(data []byte, startAfterOpenQuote int) int {
	cl := getClassifier(0, '"')
	i := startAfterOpenQuote
	for i < len(data) {
		if cl.isQuote(data[i]) {
			// Check for escaped quote
			if i+1 < len(data) && cl.isQuote(data[i+1]) {
				i += 2
				continue
			}
			// This is the closing quote
			return i
		}
		i++
	}
	return -1
}

// findClosingQuoteWide skips 8-byte lanes containing no quote in bulk using
// the broadcast8/hasZeroLane SWAR primitives, falling back to the scalar
// scan once a lane tests positive.
func findClosingQuoteWide(data []byte, startAfterOpenQuote int) int {
	n := len(data)
	i := startAfterOpenQuote
	quoteLane := broadcast8('"')

	for i+8 <= n {
		var word uint64
		for j := 0; j < 8; j++ {
			word |= uint64(data[i+j]) << (8 * j)
		}
		if hasZeroLane(word ^ quoteLane) {
			break
		}
		i += 8
	}

	return findClosingQuoteScalar(data, i)
}

// extractQuotedContent extracts content from a quoted field, handling unescaping.
// data should start from the opening quote.
// Returns the unescaped content between quotes.
func extractQuotedContent(data []byte, closingQuoteIdx int) string {
	if closingQuoteIdx <= 1 {
		return ""
	}
	return unescapeDoubleQuotes(string(data[1:closingQuoteIdx]))
}
