// Package flatfile reads and writes a world as a line-oriented text dump,
// for inspection, diffing and moving worlds between stores.
package flatfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/crystal-mush/xmlattach/pkg/attach"
	"github.com/crystal-mush/xmlattach/pkg/codec"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
)

// Parser reads a text dump into a Loader.
type Parser struct {
	reader *bufio.Reader
	loader *attach.Loader
	line   int
	format int
	next   gamedb.DBRef
}

// Load reads a dump from disk into world and reg.
func Load(path string, world *gamedb.World, reg *attach.Registry, behaviors, attachments *codec.Registry) (attach.LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return attach.LoadStats{}, fmt.Errorf("open flatfile: %w", err)
	}
	defer f.Close()

	return Parse(f, world, reg, behaviors, attachments)
}

// Parse reads a dump from r. As with the bolt store, a malformed record
// fails the whole parse and leaves world and reg untouched, while unknown
// types are skipped.
func Parse(r io.Reader, world *gamedb.World, reg *attach.Registry, behaviors, attachments *codec.Registry) (attach.LoadStats, error) {
	p := &Parser{
		reader: bufio.NewReaderSize(r, 256*1024),
		loader: attach.NewLoader(behaviors, attachments),
		next:   1,
	}
	if err := p.parse(); err != nil {
		return attach.LoadStats{}, err
	}
	return p.loader.Commit(world, reg, p.next), nil
}

func (p *Parser) parse() error {
	for {
		ch, err := p.peekByte()
		if err == io.EOF {
			return fmt.Errorf("unexpected EOF at line %d (no end-of-dump marker)", p.line)
		}
		if err != nil {
			return fmt.Errorf("read error at line %d: %w", p.line, err)
		}

		switch ch {
		case '+':
			if err := p.parseHeader(); err != nil {
				return err
			}
		case '!':
			if err := p.parseSection("entity", p.loader.Entity); err != nil {
				return err
			}
		case '@':
			if err := p.parseSection("attachment", p.loader.Attachment); err != nil {
				return err
			}
		case '*':
			return p.parseEOF()
		case '\n', '\r':
			p.readLine()
			continue
		default:
			return fmt.Errorf("unexpected character '%c' at line %d", ch, p.line+1)
		}
	}
}

// parseHeader handles + prefixed lines: +X (format) and +N (next serial).
func (p *Parser) parseHeader() error {
	line, _ := p.readLine()
	if len(line) < 2 {
		return fmt.Errorf("bad header %q at line %d", line, p.line)
	}
	n, err := strconv.Atoi(strings.TrimSpace(line[2:]))
	if err != nil {
		return fmt.Errorf("bad header %q at line %d: %w", line, p.line, err)
	}
	switch line[1] {
	case 'X':
		if n > formatVersion {
			return fmt.Errorf("dump format %d is newer than %d", n, formatVersion)
		}
		p.format = n
	case 'N':
		p.next = gamedb.DBRef(n)
	default:
		return fmt.Errorf("unknown header %q at line %d", line, p.line)
	}
	return nil
}

// parseSection collects the value lines after a section marker and hands
// them to decode. Values left unread by a skipped record are discarded with
// the section.
func (p *Parser) parseSection(what string, decode func(codec.Reader) error) error {
	marker, _ := p.readLine()
	start := p.line
	var body strings.Builder
	for {
		ch, err := p.peekByte()
		if err != nil || ch == '!' || ch == '@' || ch == '*' || ch == '+' {
			break
		}
		line, err := p.readLine()
		body.WriteString(line)
		body.WriteByte('\n')
		if err != nil {
			break
		}
	}
	tr := NewTextReader(strings.NewReader(body.String()))
	tr.SetLine(start + 1)
	if err := decode(tr); err != nil {
		return fmt.Errorf("flatfile: %s %s at line %d: %w", what, marker[1:], start, err)
	}
	return nil
}

// parseEOF handles the ***END OF DUMP*** marker.
func (p *Parser) parseEOF() error {
	line, _ := p.readLine()
	if strings.TrimSpace(line) != endMarker {
		return fmt.Errorf("bad EOF marker: %q", line)
	}
	return nil
}

// --- Low-level I/O helpers ---

func (p *Parser) peekByte() (byte, error) {
	b, err := p.reader.Peek(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// readLine reads until end of line and returns the content (excluding newline).
func (p *Parser) readLine() (string, error) {
	line, err := p.reader.ReadString('\n')
	p.line++
	return strings.TrimRight(line, "\r\n"), err
}
