package xpad

import (
	"io"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestLineReader(input string) *lineReader {
	return newLineReader(strings.NewReader(input), DefaultReadBufferSize, DefaultMaxLineLength)
}

func TestLineReader_Classification(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect ValueKind
		want   ResponseLine
	}{
		{
			name:  "prompt",
			input: "> ",
			want:  ResponseLine{Kind: PromptLine},
		},
		{
			name:  "error message",
			input: "! disk full\r\n",
			want:  ResponseLine{Kind: ErrorLine, Text: "disk full"},
		},
		{
			name:  "debug message",
			input: "# module 3 ready\r\n",
			want:  ResponseLine{Kind: DebugLine, Text: "module 3 ready"},
		},
		{
			name:   "integer",
			input:  "* 42\r\n",
			expect: IntValue,
			want:   ResponseLine{Kind: IntLine, Int: 42},
		},
		{
			name:   "negative integer",
			input:  "* -1\r\n",
			expect: IntValue,
			want:   ResponseLine{Kind: IntLine, Int: -1},
		},
		{
			name:   "double",
			input:  "* 0.25\r\n",
			expect: DoubleValue,
			want:   ResponseLine{Kind: DoubleLine, Double: 0.25},
		},
		{
			name:   "integer token in double context",
			input:  "* 3\r\n",
			expect: DoubleValue,
			want:   ResponseLine{Kind: DoubleLine, Double: 3},
		},
		{
			name:   "double token in integer context",
			input:  "* 1.5\r\n",
			expect: IntValue,
			want:   ResponseLine{Kind: DoubleLine, Double: 1.5},
		},
		{
			name:   "quoted string",
			input:  "* \"XPAD_S70\"\r\n",
			expect: StringValue,
			want:   ResponseLine{Kind: StringLine, Text: "XPAD_S70"},
		},
		{
			name:   "null string",
			input:  "* (null)\r\n",
			expect: StringValue,
			want:   ResponseLine{Kind: StringLine, Null: true},
		},
		{
			name:  "progress with text",
			input: "@12 100'done'\r\n",
			want:  ResponseLine{Kind: ProgressLine, Done: 12, Total: 100, Text: "done"},
		},
		{
			name:  "progress with double quoted text",
			input: "@ 3 9\"calibrating\"\r\n",
			want:  ResponseLine{Kind: ProgressLine, Done: 3, Total: 9, Text: "calibrating"},
		},
		{
			name:  "progress without text",
			input: "@ 7 8\r\n",
			want:  ResponseLine{Kind: ProgressLine, Done: 7, Total: 8},
		},
		{
			name:  "unknown marker",
			input: "hello there\r\n",
			want:  ResponseLine{Kind: UnknownLine, Text: "hello there"},
		},
		{
			name:  "leading line breaks are skipped",
			input: "\r\n\r\n! late\r\n",
			want:  ResponseLine{Kind: ErrorLine, Text: "late"},
		},
		{
			name:  "marker without separator",
			input: "!no space\n",
			want:  ResponseLine{Kind: ErrorLine, Text: "no space"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			lr := newTestLineReader(tt.input)
			line, err := lr.next(tt.expect)
			require.NoError(err)
			require.Equal(tt.want, line)
		})
	}
}

func TestLineReader_NaN(t *testing.T) {
	require := require.New(t)

	lr := newTestLineReader("* nan\r\n* NaN\r\n")
	for range 2 {
		line, err := lr.next(DoubleValue)
		require.NoError(err)
		require.Equal(DoubleLine, line.Kind)
		require.True(math.IsNaN(line.Double))
	}
}

func TestLineReader_Malformed(t *testing.T) {
	require := require.New(t)

	lr := newTestLineReader("* abc\r\n* 7\r\n")
	_, err := lr.next(IntValue)
	require.ErrorIs(err, ErrMalformedLine)

	// the stream stays aligned on the next line
	line, err := lr.next(IntValue)
	require.NoError(err)
	require.Equal(7, line.Int)
}

func TestLineReader_Sequence(t *testing.T) {
	require := require.New(t)

	lr := newTestLineReader("> # step 1\r\n@1 2'half'\r\n* 0\r\n> ")
	kinds := []LineKind{}
	for {
		line, err := lr.next(IntValue)
		if err == io.EOF {
			break
		}
		require.NoError(err)
		kinds = append(kinds, line.Kind)
	}
	require.Equal([]LineKind{PromptLine, DebugLine, ProgressLine, IntLine, PromptLine}, kinds)
}

func TestLineReader_UnknownLineBounded(t *testing.T) {
	require := require.New(t)

	long := strings.Repeat("x", 200)
	lr := newLineReader(strings.NewReader(long+"\r\n"), 64, 64)

	line, err := lr.next(NoValue)
	require.NoError(err)
	require.Equal(UnknownLine, line.Kind)
	require.Len(line.Text, 65) // marker byte plus the bounded text

	// the overflow stays in the stream
	line, err = lr.next(NoValue)
	require.NoError(err)
	require.Equal(UnknownLine, line.Kind)
}

func TestLineReader_ErrorTextBounded(t *testing.T) {
	require := require.New(t)

	long := strings.Repeat("e", 300)
	lr := newLineReader(strings.NewReader("! "+long+"\r\n* 1\r\n"), 64, 64)

	line, err := lr.next(IntValue)
	require.NoError(err)
	require.Equal(ErrorLine, line.Kind)
	require.Len(line.Text, 64)

	line, err = lr.next(IntValue)
	require.NoError(err)
	require.Equal(1, line.Int)
}

func TestLineReader_StringValueBounded(t *testing.T) {
	require := require.New(t)

	long := strings.Repeat("A", 5000)
	lr := newLineReader(strings.NewReader("* \""+long+"\"\r\n* 7\r\n"), 64, 64)

	line, err := lr.next(StringValue)
	require.NoError(err)
	require.Equal(StringLine, line.Kind)
	require.Equal(strings.Repeat("A", 64), line.Text)

	// the overflow is dropped up to the closing quote
	line, err = lr.next(IntValue)
	require.NoError(err)
	require.Equal(IntLine, line.Kind)
	require.Equal(7, line.Int)
}

func TestLineReader_EOF(t *testing.T) {
	require := require.New(t)

	lr := newTestLineReader("* \"unterminated")
	_, err := lr.next(StringValue)
	require.ErrorIs(err, io.EOF)
}

func TestLineKind_String(t *testing.T) {
	require := require.New(t)

	require.Equal("prompt", PromptLine.String())
	require.Equal("progress", ProgressLine.String())
	require.Equal("string", StringLine.String())
	require.Equal("invalid", LineKind(99).String())
	require.Equal("double", DoubleValue.String())
}
