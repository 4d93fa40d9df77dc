package transform

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strconv"
)

// applyOp dispatches to the built-in implementation for op. Every
// built-in is a pure function of its input bytes (plus ctx for custom);
// non-trivial transforms return a freshly allocated, pool-backed buffer.
func applyOp(op Operation, data []byte, ctx *Context) Result {
	switch op {
	case Uppercase:
		return transformUppercase(data)
	case Lowercase:
		return transformLowercase(data)
	case Trim:
		return transformTrim(data)
	case ToInt:
		return transformToInt(data)
	case ToFloat:
		return transformToFloat(data)
	case Base64Encode:
		return transformBase64Encode(data)
	case Base64Decode:
		return transformBase64Decode(data)
	case HashSHA256:
		return transformHashSHA256(data)
	case Custom:
		return transformCustom(data, ctx)
	default:
		return borrowed(data)
	}
}

func transformUppercase(data []byte) Result {
	out := acquireBuffer(len(data))
	for _, b := range data {
		if b >= 'a' && b <= 'z' {
			b -= 'a' - 'A'
		}
		out = append(out, b)
	}
	return owned(out)
}

func transformLowercase(data []byte) Result {
	out := acquireBuffer(len(data))
	for _, b := range data {
		if b >= 'A' && b <= 'Z' {
			b += 'a' - 'A'
		}
		out = append(out, b)
	}
	return owned(out)
}

func transformTrim(data []byte) Result {
	start, end := 0, len(data)
	for start < end && isSpace(data[start]) {
		start++
	}
	for end > start && isSpace(data[end-1]) {
		end--
	}
	out := acquireBuffer(end - start)
	out = append(out, data[start:end]...)
	return owned(out)
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\v' || b == '\f'
}

// transformToInt parses a leading signed decimal integer (terminating at
// the first non-digit, matching the teacher C reference's strtoll-based
// behavior) and re-emits its canonical decimal form. Unparseable input
// yields "0".
func transformToInt(data []byte) Result {
	v, _ := parseLeadingInt(data)
	out := acquireBuffer(20)
	out = strconv.AppendInt(out, v, 10)
	return owned(out)
}

func parseLeadingInt(data []byte) (int64, bool) {
	i := 0
	neg := false
	if i < len(data) && (data[i] == '+' || data[i] == '-') {
		neg = data[i] == '-'
		i++
	}
	start := i
	var v int64
	for i < len(data) && data[i] >= '0' && data[i] <= '9' {
		v = v*10 + int64(data[i]-'0')
		i++
	}
	if i == start {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}

// transformToFloat parses a leading decimal float and re-emits it with a
// six-digit fractional part, matching the teacher C reference's "%.6f".
func transformToFloat(data []byte) Result {
	s := string(data)
	v, err := strconv.ParseFloat(s, 64)
	if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrSyntax {
		// Parse the longest prefix of the leading run of sign, digit, '.',
		// 'e' and 'E' bytes that is a valid float; trailing text is ignored.
		n := 0
		for n < len(s) && (s[n] >= '0' && s[n] <= '9' || s[n] == '.' || s[n] == '+' || s[n] == '-' || s[n] == 'e' || s[n] == 'E') {
			n++
		}
		for ; n > 0; n-- {
			v, err = strconv.ParseFloat(s[:n], 64)
			if ne, ok := err.(*strconv.NumError); !ok || ne.Err != strconv.ErrSyntax {
				break
			}
		}
	}
	out := acquireBuffer(32)
	out = strconv.AppendFloat(out, v, 'f', 6, 64)
	return owned(out)
}

func transformBase64Encode(data []byte) Result {
	n := base64.StdEncoding.EncodedLen(len(data))
	out := acquireBuffer(n)
	out = out[:n]
	base64.StdEncoding.Encode(out, data)
	return owned(out)
}

// transformBase64Decode decodes standard base64; malformed input passes
// the original bytes through unchanged, matching the pipeline's general
// "errors surfaced as original unchanged" policy for lossy conversions.
func transformBase64Decode(data []byte) Result {
	n := base64.StdEncoding.DecodedLen(len(data))
	out := acquireBuffer(n)
	out = out[:n]
	written, err := base64.StdEncoding.Decode(out, data)
	if err != nil {
		releaseBuffer(out)
		return borrowed(data)
	}
	return owned(out[:written])
}

// transformHashSHA256 hashes data with real crypto/sha256 and hex-encodes
// the digest. The C reference this pipeline is modeled on ships a
// documented mock ("sha256_" + length-derived junk); this implementation
// replaces it with an actual cryptographic hash as the operation's name
// promises.
func transformHashSHA256(data []byte) Result {
	sum := sha256.Sum256(data)
	out := acquireBuffer(hex.EncodedLen(len(sum)))
	out = out[:hex.EncodedLen(len(sum))]
	hex.Encode(out, sum[:])
	return owned(out)
}

// transformCustom invokes ctx.Custom if present; a nil context, nil hook,
// or a hook reporting failure all pass the original bytes through
// unchanged.
func transformCustom(data []byte, ctx *Context) Result {
	if ctx == nil || ctx.Custom == nil {
		return borrowed(data)
	}
	out, ok := ctx.Custom(data)
	if !ok {
		return borrowed(data)
	}
	return borrowed(out)
}
