package tabular

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// TailOptions configures a Tail.
type TailOptions struct {
	// Follow keeps waiting for appended lines after reaching end of file.
	Follow bool
	// SkipExisting ignores rows already present when the tail is opened.
	// It only has an effect together with Follow.
	SkipExisting bool
	// PollInterval is how long to wait before re-reading at end of file.
	PollInterval time.Duration
}

const minPollInterval = 100 * time.Millisecond

// Tail reads a Zeek-style log line by line. A "#fields" line (re)defines the
// header and other "#" lines are ignored. Rows narrower than the header are
// dropped; wider rows lose their extra values, as with Reader. A Tail is forward-only: once exhausted or cancelled it
// must be reopened.
type Tail struct {
	f       *os.File
	r       *bufio.Reader
	opts    TailOptions
	header  *Header
	delim   rune
	pending strings.Builder
	// size is the file length at open time.
	size    int64
	dropped int
}

// OpenTail opens path for tailing.
func OpenTail(path string, opts TailOptions) (*Tail, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat log: %w", err)
	}
	if opts.PollInterval < minPollInterval {
		opts.PollInterval = minPollInterval
	}
	return &Tail{
		f:    f,
		r:    bufio.NewReader(f),
		opts: opts,
		size: st.Size(),
	}, nil
}

// Next blocks until a row is available. Without Follow it returns io.EOF at
// end of file; with Follow it returns ctx.Err() once ctx is done.
func (t *Tail) Next(ctx context.Context) (RawRow, error) {
	for {
		if err := ctx.Err(); err != nil {
			return RawRow{}, err
		}

		line, err := t.r.ReadString('\n')
		t.pending.WriteString(line)
		if errors.Is(err, io.EOF) {
			if !t.opts.Follow {
				if t.pending.Len() == 0 {
					return RawRow{}, io.EOF
				}
			} else {
				// Partial lines wait for their newline.
				if err := t.sleep(ctx); err != nil {
					return RawRow{}, err
				}
				continue
			}
		} else if err != nil {
			return RawRow{}, fmt.Errorf("read log: %w", err)
		}

		full := t.pending.String()
		t.pending.Reset()

		row, ok := t.parse(strings.TrimRight(full, "\r\n"))
		if !ok {
			continue
		}
		if t.opts.Follow && t.opts.SkipExisting && t.position() <= t.size {
			continue
		}
		return row, nil
	}
}

// Header returns the current header, or nil before one has been read.
func (t *Tail) Header() *Header {
	return t.header
}

// Dropped returns how many data rows were discarded as short.
func (t *Tail) Dropped() int {
	return t.dropped
}

func (t *Tail) Close() error {
	return t.f.Close()
}

func (t *Tail) parse(line string) (RawRow, bool) {
	if strings.TrimSpace(line) == "" {
		return RawRow{}, false
	}
	if strings.HasPrefix(line, fieldsMarker) {
		t.delim = DetectDelimiter(line)
		if raw, err := splitLine(line, t.delim); err == nil {
			t.header = NewHeader(NormalizeHeader(raw))
		}
		return RawRow{}, false
	}
	if strings.HasPrefix(line, "#") {
		return RawRow{}, false
	}
	if t.header == nil {
		t.delim = DetectDelimiter(line)
		raw, err := splitLine(line, t.delim)
		if err != nil {
			return RawRow{}, false
		}
		t.header = NewHeader(NormalizeHeader(raw))
		return RawRow{}, false
	}

	values, err := splitLine(line, t.delim)
	if err != nil || len(values) < t.header.Len() {
		t.dropped++
		return RawRow{}, false
	}
	return NewRow(t.header, values), true
}

// position is the offset of the next unread byte.
func (t *Tail) position() int64 {
	off, err := t.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0
	}
	return off - int64(t.r.Buffered())
}

func (t *Tail) sleep(ctx context.Context) error {
	timer := time.NewTimer(t.opts.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
