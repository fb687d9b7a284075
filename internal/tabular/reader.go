package tabular

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Reader yields RawRows from a delimited table. Rows shorter than the header
// are dropped and counted; Reader never fails on a malformed data row.
type Reader struct {
	csv    *csv.Reader
	header *Header
	delim  rune
	short  int
	read   int
}

// NewReader consumes the first non-empty line of r as the header. A source
// with no header yields a Reader whose Next immediately returns io.EOF.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)

	var first string
	for {
		line, err := br.ReadString('\n')
		if strings.TrimSpace(strings.TrimPrefix(line, byteOrderMark)) != "" {
			first = strings.TrimRight(line, "\r\n")
			break
		}
		if errors.Is(err, io.EOF) {
			return &Reader{header: NewHeader(nil)}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
	}

	delim := DetectDelimiter(first)
	raw, err := splitLine(first, delim)
	if err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}

	cr := csv.NewReader(br)
	cr.Comma = delim
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false

	return &Reader{
		csv:    cr,
		header: NewHeader(NormalizeHeader(raw)),
		delim:  delim,
	}, nil
}

// Header returns the normalized header.
func (r *Reader) Header() *Header {
	return r.header
}

// Delimiter returns the detected separator.
func (r *Reader) Delimiter() rune {
	return r.delim
}

// Next returns the next complete row or io.EOF.
func (r *Reader) Next() (RawRow, error) {
	if r.csv == nil || r.header.Len() == 0 {
		return RawRow{}, io.EOF
	}
	for {
		rec, err := r.csv.Read()
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				r.short++
				continue
			}
			return RawRow{}, err
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if len(rec) < r.header.Len() {
			r.short++
			continue
		}
		r.read++
		return NewRow(r.header, rec), nil
	}
}

// Short returns how many data rows were dropped for being incomplete.
func (r *Reader) Short() int {
	return r.short
}

// Read returns how many rows Next has yielded.
func (r *Reader) Read() int {
	return r.read
}

// Each calls fn for every row until the source is exhausted or fn fails.
func (r *Reader) Each(fn func(RawRow) error) error {
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
}

// Preview returns up to limit rows from the start of r.
func Preview(r io.Reader, limit int) (*Header, []RawRow, error) {
	reader, err := NewReader(r)
	if err != nil {
		return nil, nil, err
	}
	var rows []RawRow
	for len(rows) < limit {
		row, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, row)
	}
	return reader.Header(), rows, nil
}

func splitLine(line string, delim rune) ([]string, error) {
	if delim == '\t' {
		return strings.Split(line, "\t"), nil
	}
	cr := csv.NewReader(strings.NewReader(line))
	cr.Comma = delim
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	return cr.Read()
}

var gzipMagic = []byte{0x1f, 0x8b}

// Open opens a table file, transparently decompressing gzip content.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return Decompress(f)
}

// Decompress wraps rc with a gzip reader when its content starts with the
// gzip magic bytes. Closing the result closes rc.
func Decompress(rc io.ReadCloser) (io.ReadCloser, error) {
	br := bufio.NewReader(rc)
	magic, _ := br.Peek(len(gzipMagic))
	if !bytes.Equal(magic, gzipMagic) {
		return &readCloser{Reader: br, closer: rc}, nil
	}

	zr, err := gzip.NewReader(br)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	return &readCloser{Reader: zr, closer: closeBoth{zr, rc}}, nil
}

type readCloser struct {
	io.Reader
	closer io.Closer
}

func (r *readCloser) Close() error {
	return r.closer.Close()
}

type closeBoth struct {
	inner io.Closer
	outer io.Closer
}

func (c closeBoth) Close() error {
	err := c.inner.Close()
	if cerr := c.outer.Close(); err == nil {
		err = cerr
	}
	return err
}
