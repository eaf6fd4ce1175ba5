package xpad

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

const (
	cr = '\r'
	lf = '\n'
)

// LineKind classifies a line received from the server.
type LineKind uint8

const (
	// PromptLine is the "> " marker: the server waits for the next command.
	PromptLine LineKind = iota
	// ErrorLine is a "!" error message.
	ErrorLine
	// DebugLine is a "#" debug message.
	DebugLine
	// ProgressLine is a "@" progress update.
	ProgressLine
	// UnknownLine is a line with an unrecognized marker.
	UnknownLine
	// IntLine is a "*" integer return value.
	IntLine
	// DoubleLine is a "*" floating point return value.
	DoubleLine
	// StringLine is a "*" string return value, possibly "(null)".
	StringLine
)

func (k LineKind) String() string {
	switch k {
	case PromptLine:
		return "prompt"
	case ErrorLine:
		return "error"
	case DebugLine:
		return "debug"
	case ProgressLine:
		return "progress"
	case UnknownLine:
		return "unknown"
	case IntLine:
		return "int"
	case DoubleLine:
		return "double"
	case StringLine:
		return "string"
	default:
		return "invalid"
	}
}

// ValueKind is the response shape a command expects.
type ValueKind uint8

const (
	// NoValue is used for fire-and-forget commands.
	NoValue ValueKind = iota
	IntValue
	DoubleValue
	StringValue
)

func (k ValueKind) String() string {
	switch k {
	case NoValue:
		return "none"
	case IntValue:
		return "int"
	case DoubleValue:
		return "double"
	case StringValue:
		return "string"
	default:
		return "invalid"
	}
}

// lineKind returns the line kind that carries a value of kind k.
func (k ValueKind) lineKind() LineKind {
	switch k {
	case IntValue:
		return IntLine
	case DoubleValue:
		return DoubleLine
	default:
		return StringLine
	}
}

// ResponseLine is one parsed line from the server.
type ResponseLine struct {
	Kind LineKind
	// Text holds the message of error, debug, progress and unknown lines
	// and the value of string lines.
	Text   string
	Int    int
	Double float64
	// Done and Total are the progress counters of a progress line.
	Done  int
	Total int
	// Null is set for the "(null)" string value.
	Null bool
}

// lineReader assembles ResponseLines from a buffered byte stream.
//
// The reader is NOT goroutine-safe; the Client serializes access to it.
type lineReader struct {
	r      *bufio.Reader
	maxLen int
}

func newLineReader(rd io.Reader, bufSize int, maxLen int) *lineReader {
	return &lineReader{
		r:      bufio.NewReaderSize(rd, bufSize),
		maxLen: maxLen,
	}
}

// next reads the next line. expect decides whether a bare numeric value is
// parsed as an integer or a double.
//
// Errors other than ErrMalformedLine come from the underlying reader and
// mean the stream is broken.
func (lr *lineReader) next(expect ValueKind) (ResponseLine, error) {
	marker, err := lr.skipLineBreaks()
	if err != nil {
		return ResponseLine{}, err
	}

	switch marker {
	case '>':
		// the prompt is always followed by a single space
		if _, err := lr.r.ReadByte(); err != nil {
			return ResponseLine{}, err
		}

		return ResponseLine{Kind: PromptLine}, nil

	case '!', '#':
		if err := lr.skipSeparator(); err != nil {
			return ResponseLine{}, err
		}
		text, _, err := lr.readUntil(true, cr, lf)
		if err != nil {
			return ResponseLine{}, err
		}
		kind := ErrorLine
		if marker == '#' {
			kind = DebugLine
		}

		return ResponseLine{Kind: kind, Text: text}, nil

	case '@':
		return lr.readProgress()

	case '*':
		return lr.readValue(expect)

	default:
		text, _, err := lr.readUntil(false, cr, lf)
		if err != nil {
			return ResponseLine{}, err
		}

		return ResponseLine{Kind: UnknownLine, Text: string(marker) + text}, nil
	}
}

func (lr *lineReader) skipLineBreaks() (byte, error) {
	for {
		b, err := lr.r.ReadByte()
		if err != nil {
			return 0, err
		}
		if b != cr && b != lf {
			return b, nil
		}
	}
}

// skipSeparator discards the optional space following a marker byte.
func (lr *lineReader) skipSeparator() error {
	b, err := lr.r.Peek(1)
	if err != nil {
		return err
	}
	if b[0] == ' ' {
		_, _ = lr.r.ReadByte()
	}

	return nil
}

// readUntil reads bytes until one of the terminators, which is consumed and
// returned. At most maxLen bytes are kept: with discard set the overflow is
// read and dropped up to the terminator, otherwise reading stops at maxLen
// and the remaining bytes stay in the stream.
func (lr *lineReader) readUntil(discard bool, terminators ...byte) (string, byte, error) {
	var sb strings.Builder
	for {
		b, err := lr.r.ReadByte()
		if err != nil {
			return "", 0, err
		}
		for _, t := range terminators {
			if b == t {
				return sb.String(), b, nil
			}
		}
		if sb.Len() >= lr.maxLen {
			if discard {
				continue
			}

			return sb.String(), 0, lr.r.UnreadByte()
		}
		sb.WriteByte(b)
	}
}

// readProgress parses `@ <done> <total>['"]text['"]`.
func (lr *lineReader) readProgress() (ResponseLine, error) {
	if err := lr.skipSeparator(); err != nil {
		return ResponseLine{}, err
	}

	counters, term, err := lr.readUntil(true, '\'', '"', cr, lf)
	if err != nil {
		return ResponseLine{}, err
	}

	line := ResponseLine{Kind: ProgressLine}
	fields := strings.Fields(counters)
	if len(fields) > 0 {
		line.Done, _ = strconv.Atoi(fields[0])
	}
	if len(fields) > 1 {
		line.Total, _ = strconv.Atoi(fields[1])
	}

	if term == '\'' || term == '"' {
		text, _, err := lr.readUntil(true, cr, lf)
		if err != nil {
			return ResponseLine{}, err
		}
		if n := len(text); n > 0 && (text[n-1] == '\'' || text[n-1] == '"') {
			text = text[:n-1]
		}
		line.Text = text
	}

	return line, nil
}

// readValue parses the payload of a '*' line.
func (lr *lineReader) readValue(expect ValueKind) (ResponseLine, error) {
	if err := lr.skipSeparator(); err != nil {
		return ResponseLine{}, err
	}

	first, err := lr.r.ReadByte()
	if err != nil {
		return ResponseLine{}, err
	}

	switch first {
	case '(':
		if _, _, err := lr.readUntil(true, ')', cr, lf); err != nil {
			return ResponseLine{}, err
		}

		return ResponseLine{Kind: StringLine, Null: true}, nil

	case '"':
		// text past maxLen is dropped up to the closing quote
		text, _, err := lr.readUntil(true, '"')
		if err != nil {
			return ResponseLine{}, err
		}

		return ResponseLine{Kind: StringLine, Text: text}, nil

	case cr, lf:
		return ResponseLine{}, fmt.Errorf("%w: empty return value", ErrMalformedLine)

	default:
		rest, _, err := lr.readUntil(true, cr, lf)
		if err != nil {
			return ResponseLine{}, err
		}

		return parseNumber(strings.TrimSpace(string(first)+rest), expect)
	}
}

func parseNumber(token string, expect ValueKind) (ResponseLine, error) {
	if expect == DoubleValue {
		if strings.EqualFold(token, "nan") {
			return ResponseLine{Kind: DoubleLine, Double: math.NaN()}, nil
		}
		f, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return ResponseLine{}, fmt.Errorf("%w: %q", ErrMalformedLine, token)
		}

		return ResponseLine{Kind: DoubleLine, Double: f}, nil
	}

	if n, err := strconv.Atoi(token); err == nil {
		return ResponseLine{Kind: IntLine, Int: n}, nil
	}
	if f, err := strconv.ParseFloat(token, 64); err == nil {
		return ResponseLine{Kind: DoubleLine, Double: f}, nil
	}

	return ResponseLine{}, fmt.Errorf("%w: %q", ErrMalformedLine, token)
}

// readFull reads exactly len(buf) bytes from the buffered stream.
func (lr *lineReader) readFull(buf []byte) error {
	_, err := io.ReadFull(lr.r, buf)
	return err
}

// readUint32 reads one fixed-width little-endian 32-bit field.
func (lr *lineReader) readUint32(scratch []byte) (uint32, error) {
	if err := lr.readFull(scratch[:4]); err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(scratch[:4]), nil
}
