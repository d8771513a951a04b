// Package wire implements the HandlerSocket line protocol framing.
//
// A request or response is a single line of TAB separated tokens terminated
// by LF. Bytes 0x00-0x0f inside a token are written as 0x01 followed by the
// byte plus 0x40. A token made of the single byte 0x00 stands for NULL.
package wire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

const (
	Sep  = '\t'
	EOL  = '\n'
	null = 0x00
	esc  = 0x01
	// escape shift for control bytes
	shift = 0x40
)

var (
	ErrMalformed = errors.New("wire: malformed response")
	ErrTooLong   = errors.New("wire: line exceeds limit")
)

// Token is one decoded field. Null is set for the NULL marker.
type Token struct {
	Value string
	Null  bool
}

// AppendEscaped appends s to dst with control bytes escaped.
func AppendEscaped(dst []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x10 {
			dst = append(dst, esc, c+shift)
			continue
		}
		dst = append(dst, c)
	}
	return dst
}

// Unescape reverses AppendEscaped. A trailing lone escape byte is kept as-is.
func Unescape(b []byte) string {
	if bytes.IndexByte(b, esc) < 0 {
		return string(b)
	}
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] == esc && i+1 < len(b) {
			out = append(out, b[i+1]-shift)
			i++
			continue
		}
		out = append(out, b[i])
	}
	return string(out)
}

// Request accumulates the tokens of one request line.
type Request struct {
	buf []byte
	n   int
}

func NewRequest(tokens ...string) *Request {
	r := &Request{buf: make([]byte, 0, 64)}
	for _, t := range tokens {
		r.Add(t)
	}
	return r
}

func (r *Request) sep() {
	if r.n > 0 {
		r.buf = append(r.buf, Sep)
	}
	r.n++
}

// Add appends an escaped token.
func (r *Request) Add(tok string) *Request {
	r.sep()
	r.buf = AppendEscaped(r.buf, tok)
	return r
}

// AddInt appends a decimal token.
func (r *Request) AddInt(n int) *Request {
	r.sep()
	r.buf = strconv.AppendInt(r.buf, int64(n), 10)
	return r
}

// AddNull appends the NULL marker.
func (r *Request) AddNull() *Request {
	r.sep()
	r.buf = append(r.buf, null)
	return r
}

// Bytes returns the terminated line.
func (r *Request) Bytes() []byte {
	out := make([]byte, len(r.buf), len(r.buf)+1)
	copy(out, r.buf)
	return append(out, EOL)
}

func (r *Request) String() string {
	return string(r.buf)
}

// Split decodes a line (without LF) into tokens.
func Split(line []byte) []Token {
	parts := bytes.Split(line, []byte{Sep})
	out := make([]Token, len(parts))
	for i, p := range parts {
		if len(p) == 1 && p[0] == null {
			out[i] = Token{Null: true}
			continue
		}
		out[i] = Token{Value: Unescape(p)}
	}
	return out
}

// Response is a parsed response line.
//
// For Code == 0, Fields holds the result tokens. Otherwise Message carries
// the server's error text ("stmtnum", "121", "open_table", ...).
type Response struct {
	Code    int
	NumCols int
	Fields  []Token
	Message string
}

// OK reports whether the server accepted the request.
func (r Response) OK() bool { return r.Code == 0 }

// Rows groups Fields into rows of NumCols values. NULL decodes to "".
func (r Response) Rows() [][]string {
	if r.NumCols <= 0 || len(r.Fields) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(r.Fields)/r.NumCols)
	for i := 0; i+r.NumCols <= len(r.Fields); i += r.NumCols {
		row := make([]string, r.NumCols)
		for j := range row {
			row[j] = r.Fields[i+j].Value
		}
		rows = append(rows, row)
	}
	return rows
}

// Count returns the affected-row count carried by modify responses.
func (r Response) Count() (int, error) {
	if len(r.Fields) == 0 {
		return 0, fmt.Errorf("%w: missing count", ErrMalformed)
	}
	n, err := strconv.Atoi(r.Fields[0].Value)
	if err != nil {
		return 0, fmt.Errorf("%w: bad count %q", ErrMalformed, r.Fields[0].Value)
	}
	return n, nil
}

// ParseResponse parses one response line (LF already stripped).
func ParseResponse(line []byte) (Response, error) {
	toks := Split(line)
	if len(toks) < 2 {
		return Response{}, fmt.Errorf("%w: %q", ErrMalformed, line)
	}
	code, err := strconv.Atoi(toks[0].Value)
	if err != nil {
		return Response{}, fmt.Errorf("%w: bad code %q", ErrMalformed, toks[0].Value)
	}
	ncols, err := strconv.Atoi(toks[1].Value)
	if err != nil {
		return Response{}, fmt.Errorf("%w: bad column count %q", ErrMalformed, toks[1].Value)
	}

	resp := Response{Code: code, NumCols: ncols, Fields: toks[2:]}
	if code != 0 {
		if len(resp.Fields) > 0 {
			resp.Message = resp.Fields[0].Value
		}
		resp.Fields = nil
	}
	return resp, nil
}

// Reader reads LF terminated lines.
type Reader struct {
	br  *bufio.Reader
	max int
}

// NewReader wraps r; max bounds a single line (0 means 64 MiB).
func NewReader(r io.Reader, max int) *Reader {
	if max <= 0 {
		max = 64 << 20
	}
	return &Reader{br: bufio.NewReaderSize(r, 16<<10), max: max}
}

// ReadLine returns the next line without its LF.
func (r *Reader) ReadLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.br.ReadSlice(EOL)
		line = append(line, chunk...)
		if len(line) > r.max {
			return nil, ErrTooLong
		}
		if err == nil {
			return line[:len(line)-1], nil
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
}

// ReadResponse reads and parses one response line.
func (r *Reader) ReadResponse() (Response, error) {
	line, err := r.ReadLine()
	if err != nil {
		return Response{}, err
	}
	return ParseResponse(line)
}
