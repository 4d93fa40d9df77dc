package veloxcsv

// Feeder is a streaming byte-at-a-time counterpart to the whole-buffer
// scanner/parser pair: it accepts arbitrarily fragmented input so that a
// field, a row, or a quoted region can straddle any number of Feed calls
// without loss. Unlike the buffer parser, it does not vectorise: a field
// under construction is accumulated into a single reusable buffer so that
// chunk boundaries never need special-casing beyond the state already
// carried between bytes.
//
// Feeding the concatenation of any partition of a byte stream to
// successive Feed calls must produce exactly the same OnField/OnRow
// callback sequence as a single Feed call over the whole stream. Rows are
// filtered by the same Comment, MaxRowSize, FromLine, ToLine, and
// SkipEmptyLines policy that Reader applies post-parse: a row's fields
// are buffered until its terminating newline, at which point that policy
// (comment-line drop, MaxRowSize rejection, FromLine/ToLine windowing,
// empty-line skipping) decides whether to deliver it. The delivered rows
// are not always identical to Reader's: Feeder performs no quote
// validation and no FieldsPerRecord check, and at End a final row that
// has no terminating newline gets a last field only if that field has
// bytes, so "a," yields ["a"] where Reader yields ["a", ""].
type Feeder struct {
	Comma byte // field delimiter
	Quote byte // quote character

	Trim           bool // strip leading/trailing space and tab from emitted fields
	Comment        byte // if non-zero, a row whose first raw byte equals Comment is dropped entirely
	MaxRowSize     int  // if non-zero, a row whose raw byte span exceeds this fails with ErrRowTooLarge
	FromLine       int  // if non-zero, rows before this line number are dropped
	ToLine         int  // if non-zero, rows after this line number are dropped
	SkipEmptyLines bool // if true, a row consisting of a single empty field is dropped

	OnField func(field []byte) // called with the decoded bytes of one field of a delivered row; borrowed, valid only for the call
	OnRow   func()              // called once per delivered row, after its last field
	OnError func(lineNum int, err error) // called when End finds an unterminated quote, or MaxRowSize is exceeded

	mode                  feedMode
	lineNum               int
	fieldBuf              []byte
	awaitingQuoteDecision bool

	rowFields        [][]byte // fields buffered for the row in progress, decided at its terminating newline
	rowRawLen        int      // raw bytes consumed so far for the row in progress
	haveRowFirstByte bool
	rowIsComment     bool
}

type feedMode int

const (
	feedInField feedMode = iota
	feedInQuotedField
)

// NewFeeder returns a Feeder using comma as the field delimiter and '"' as
// the quote character.
func NewFeeder(comma byte) *Feeder {
	return &Feeder{
		Comma:    comma,
		Quote:    '"',
		lineNum:  1,
		fieldBuf: make([]byte, 0, 256),
	}
}

// Feed drives the state machine over chunk, preserving mode, the field
// accumulator, and any partial field or row across calls.
func (f *Feeder) Feed(chunk []byte) error {
	i := 0
	for i < len(chunk) {
		b := chunk[i]
		if !f.haveRowFirstByte {
			f.haveRowFirstByte = true
			f.rowIsComment = f.Comment != 0 && b == f.Comment
		}

		consumed, err := f.step(b)
		if err != nil {
			return err
		}
		if !consumed {
			continue
		}
		i++

		if f.MaxRowSize > 0 && !f.rowIsComment {
			f.rowRawLen++
			if f.rowRawLen > f.MaxRowSize {
				rowErr := &ParseError{StartLine: f.lineNum, Line: f.lineNum, Column: f.rowRawLen, Err: ErrRowTooLarge}
				if f.OnError != nil {
					f.OnError(f.lineNum, rowErr)
				}
				return rowErr
			}
		}
	}
	return nil
}

// step processes a single byte, returning whether it was consumed. A byte
// is left unconsumed only when a deferred quote decision resolves to "not
// a doubled quote": the byte must then be reprocessed under IN_FIELD rules.
func (f *Feeder) step(b byte) (bool, error) {
	switch f.mode {
	case feedInQuotedField:
		return f.stepQuoted(b)
	default:
		return f.stepUnquoted(b)
	}
}

func (f *Feeder) stepQuoted(b byte) (bool, error) {
	if f.awaitingQuoteDecision {
		f.awaitingQuoteDecision = false
		if b == f.Quote {
			f.fieldBuf = append(f.fieldBuf, f.Quote)
			return true, nil
		}
		// The deferred quote was a closing quote, not the first half of a
		// doubled pair. b belongs to whatever follows the field.
		f.mode = feedInField
		return false, nil
	}

	if b == f.Quote {
		f.awaitingQuoteDecision = true
		return true, nil
	}
	f.fieldBuf = append(f.fieldBuf, b)
	return true, nil
}

func (f *Feeder) stepUnquoted(b byte) (bool, error) {
	switch {
	case b == f.Quote && len(f.fieldBuf) == 0:
		f.mode = feedInQuotedField
		return true, nil
	case b == f.Comma:
		f.bufferField(false)
		return true, nil
	case b == '\n':
		f.bufferField(true)
		f.finishRow()
		return true, nil
	default:
		f.fieldBuf = append(f.fieldBuf, b)
		return true, nil
	}
}

// End finalises the stream. If a quoted field is still open, it reports an
// unterminated-quote error unless the very last byte fed was its closing
// quote. If an unquoted field has accumulated bytes, it is buffered, and a
// final row is delivered (subject to the same filtering as any other row)
// if the current row has any buffered fields.
func (f *Feeder) End() error {
	if f.mode == feedInQuotedField {
		if f.awaitingQuoteDecision {
			f.mode = feedInField
			f.awaitingQuoteDecision = false
			f.bufferField(false)
			if len(f.rowFields) > 0 {
				f.finishRow()
			}
			return nil
		}
		err := &ParseError{StartLine: f.lineNum, Line: f.lineNum, Column: len(f.fieldBuf) + 1, Err: ErrUnterminatedQuote}
		if f.OnError != nil {
			f.OnError(f.lineNum, err)
		}
		return err
	}

	if len(f.fieldBuf) > 0 {
		f.bufferField(false)
	}
	if len(f.rowFields) > 0 {
		f.finishRow()
	}
	return nil
}

// bufferField moves the accumulated field buffer into the current row's
// field list and resets the buffer for the next field. stripTrailingCR
// removes a trailing '\r' left by a CRLF sequence; it applies only at a
// newline, never at a comma. The field is delivered to OnField only once
// finishRow decides the row it belongs to should be kept.
func (f *Feeder) bufferField(stripTrailingCR bool) {
	data := f.fieldBuf
	if stripTrailingCR && len(data) > 0 && data[len(data)-1] == '\r' {
		data = data[:len(data)-1]
	}
	if f.Trim {
		data = trimLeftBytes(data)
		data = trimRightBytes(data)
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	f.rowFields = append(f.rowFields, stored)
	f.fieldBuf = f.fieldBuf[:0]
}

// finishRow decides the fate of the row just completed at lineNum: a
// comment line, a row outside [FromLine, ToLine], or (when SkipEmptyLines
// is set) a single empty field are all dropped without invoking OnField
// or OnRow. Otherwise each buffered field is delivered via OnField in
// order, followed by one OnRow call. State for the next row is reset
// regardless of the outcome.
func (f *Feeder) finishRow() {
	lineNum := f.lineNum
	fields := f.rowFields
	isComment := f.rowIsComment

	f.rowFields = nil
	f.rowRawLen = 0
	f.haveRowFirstByte = false
	f.rowIsComment = false
	f.lineNum++

	if isComment {
		return
	}
	if f.SkipEmptyLines && len(fields) == 1 && len(fields[0]) == 0 {
		return
	}
	if !lineInWindow(lineNum, f.FromLine, f.ToLine) {
		return
	}

	for _, field := range fields {
		if f.OnField != nil {
			f.OnField(field)
		}
	}
	if f.OnRow != nil {
		f.OnRow()
	}
}

// trimRightBytes trims trailing spaces and tabs from byte slice.
func trimRightBytes(b []byte) []byte {
	for len(b) > 0 {
		c := b[len(b)-1]
		if c != ' ' && c != '\t' {
			break
		}
		b = b[:len(b)-1]
	}
	return b
}
