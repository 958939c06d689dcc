package flatfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/crystal-mush/xmlattach/pkg/gamedb"
)

// Value tags. Every value is one line: the tag byte followed by the value.
const (
	tagInt      = 'i'
	tagBool     = 'b'
	tagString   = 's'
	tagDouble   = 'd'
	tagTime     = 't'
	tagDuration = 'u'
	tagRef      = 'r'
	tagPoint    = 'p'
)

// TextWriter writes codec values as tagged lines.
type TextWriter struct {
	w   *bufio.Writer
	err error
}

func NewTextWriter(w io.Writer) *TextWriter {
	return &TextWriter{w: bufio.NewWriter(w)}
}

func (tw *TextWriter) line(tag byte, v string) {
	if tw.err != nil {
		return
	}
	tw.w.WriteByte(tag)
	tw.w.WriteString(v)
	_, tw.err = tw.w.WriteString("\n")
}

func (tw *TextWriter) WriteInt(v int) { tw.line(tagInt, strconv.Itoa(v)) }

func (tw *TextWriter) WriteBool(v bool) {
	if v {
		tw.line(tagBool, "1")
		return
	}
	tw.line(tagBool, "0")
}

func (tw *TextWriter) WriteString(v string)    { tw.line(tagString, quoteString(v)) }
func (tw *TextWriter) WriteDouble(v float64)   { tw.line(tagDouble, strconv.FormatFloat(v, 'g', -1, 64)) }
func (tw *TextWriter) WriteRef(v gamedb.DBRef) { tw.line(tagRef, strconv.Itoa(int(v))) }

func (tw *TextWriter) WriteTime(v time.Time) {
	if v.IsZero() {
		tw.line(tagTime, "0")
		return
	}
	tw.line(tagTime, strconv.FormatInt(v.UnixNano(), 10))
}

func (tw *TextWriter) WriteDuration(v time.Duration) {
	tw.line(tagDuration, strconv.FormatInt(int64(v), 10))
}

func (tw *TextWriter) WritePoint(v gamedb.Point3D) {
	tw.line(tagPoint, fmt.Sprintf("%d,%d,%d", v.X, v.Y, v.Z))
}

// Raw writes a structural line such as a section marker.
func (tw *TextWriter) Raw(s string) {
	if tw.err != nil {
		return
	}
	_, tw.err = tw.w.WriteString(s + "\n")
}

// Flush writes any buffered lines.
func (tw *TextWriter) Flush() error {
	if tw.err != nil {
		return tw.err
	}
	tw.err = tw.w.Flush()
	return tw.err
}

func (tw *TextWriter) Err() error { return tw.err }

// quoteString produces a quoted string with escapes for the flatfile format.
func quoteString(s string) string {
	var buf strings.Builder
	buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			buf.WriteByte(s[i])
		}
	}
	buf.WriteByte('"')
	return buf.String()
}

// unquoteString reverses quoteString.
func unquoteString(s string) (string, error) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", fmt.Errorf("unterminated string %q", s)
	}
	s = s[1 : len(s)-1]
	var buf strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i == len(s)-1 {
			buf.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			buf.WriteByte('\n')
		case 'r':
			buf.WriteByte('\r')
		case 't':
			buf.WriteByte('\t')
		case '\\':
			buf.WriteByte('\\')
		case '"':
			buf.WriteByte('"')
		default:
			buf.WriteByte('\\')
			buf.WriteByte(s[i])
		}
	}
	return buf.String(), nil
}

// TextReader reads values written by TextWriter. Errors are sticky and
// carry the line number.
type TextReader struct {
	r    *bufio.Reader
	line int
	err  error
}

func NewTextReader(r io.Reader) *TextReader {
	return &TextReader{r: bufio.NewReader(r)}
}

// SetLine sets the number reported for the next line read.
func (tr *TextReader) SetLine(n int) { tr.line = n - 1 }

func (tr *TextReader) fail(err error) {
	if tr.err == nil {
		tr.err = fmt.Errorf("flatfile: line %d: %w", tr.line, err)
	}
}

func (tr *TextReader) next(tag byte) string {
	if tr.err != nil {
		return ""
	}
	s, err := tr.r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		tr.line++
		tr.fail(err)
		return ""
	}
	tr.line++
	s = strings.TrimRight(s, "\r\n")
	if s == "" || s[0] != tag {
		tr.fail(fmt.Errorf("expected '%c' value, got %q", tag, s))
		return ""
	}
	return s[1:]
}

func (tr *TextReader) parseInt(tag byte, bits int) int64 {
	s := tr.next(tag)
	if tr.err != nil {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, bits)
	if err != nil {
		tr.fail(err)
		return 0
	}
	return n
}

func (tr *TextReader) ReadInt() int { return int(tr.parseInt(tagInt, 32)) }

func (tr *TextReader) ReadBool() bool {
	switch s := tr.next(tagBool); {
	case tr.err != nil:
		return false
	case s == "1":
		return true
	case s == "0":
		return false
	default:
		tr.fail(fmt.Errorf("bad bool %q", s))
		return false
	}
}

func (tr *TextReader) ReadString() string {
	s := tr.next(tagString)
	if tr.err != nil {
		return ""
	}
	v, err := unquoteString(s)
	if err != nil {
		tr.fail(err)
		return ""
	}
	return v
}

func (tr *TextReader) ReadDouble() float64 {
	s := tr.next(tagDouble)
	if tr.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		tr.fail(err)
		return 0
	}
	return v
}

func (tr *TextReader) ReadTime() time.Time {
	n := tr.parseInt(tagTime, 64)
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func (tr *TextReader) ReadDuration() time.Duration {
	return time.Duration(tr.parseInt(tagDuration, 64))
}

func (tr *TextReader) ReadRef() gamedb.DBRef { return gamedb.DBRef(tr.parseInt(tagRef, 32)) }

func (tr *TextReader) ReadPoint() gamedb.Point3D {
	s := tr.next(tagPoint)
	if tr.err != nil {
		return gamedb.Point3D{}
	}
	p, err := gamedb.ParsePoint3D(s)
	if err != nil {
		tr.fail(err)
	}
	return p
}

func (tr *TextReader) Err() error { return tr.err }
