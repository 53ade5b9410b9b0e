package dataset

// csv.go implements the two lowest layers of the dataset engine:
//
//   - parseLine: one line of the government CSV format into fields
//   - scanTable: forward-only streaming scan of a table file
//
// The source files are not clean RFC 4180 CSV. Each file starts with an
// optional UTF-8 BOM, carries a second English caption line below the real
// header, and may contain stray blank lines. scanTable absorbs all of these
// quirks so callers only ever see a header and data rows.

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// maxLineBytes bounds a single CSV line. Remark columns can be long but are
// nowhere near this; the limit exists so a corrupt file cannot exhaust memory.
const maxLineBytes = 1 << 20

// errStopScan is returned by an onRow callback to end a scan early without
// surfacing an error to the caller.
var errStopScan = errors.New("stop scan")

// parseLine splits one line of the tabular format into fields.
//
// Fields are comma separated. A field may be wrapped in double quotes, in
// which case commas lose their meaning until the closing quote; a doubled
// quote inside a quoted field is a literal quote. A quote left open at end
// of line is treated as implicitly closed. Every line yields at least one
// field, so an empty line yields a single empty field.
func parseLine(s string) []string {
	out := make([]string, 0, 8)
	var field strings.Builder
	inQuotes := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inQuotes {
			if c == '"' {
				if i+1 < len(s) && s[i+1] == '"' {
					field.WriteByte('"')
					i++
				} else {
					inQuotes = false
				}
			} else {
				field.WriteByte(c)
			}
			continue
		}
		switch c {
		case '"':
			inQuotes = true
		case ',':
			out = append(out, field.String())
			field.Reset()
		default:
			field.WriteByte(c)
		}
	}
	return append(out, field.String())
}

// scanTable streams a table file line by line, reporting the header once via
// onHeader and every data row via onRow. The caller never holds more than one
// row in memory regardless of file size.
//
// Rules applied in order:
//   - a UTF-8 BOM on the very first line is stripped
//   - blank lines (a single empty field) are skipped
//   - the first surviving line is the header
//   - later lines whose first field starts with a Latin letter are the
//     bilingual English caption line and are skipped
//
// A missing file reports ErrNotFound. Cancellation of ctx is checked between
// rows so a disconnected client stops the scan promptly. If onRow returns
// errStopScan the scan ends with a nil error.
func scanTable(ctx context.Context, path string, onHeader func(header []string), onRow func(row []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("table %s: %w", path, ErrNotFound)
		}
		return fmt.Errorf("open table: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	var header []string
	first := true
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := sc.Text()
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}

		cells := parseLine(line)
		if len(cells) == 1 && strings.TrimSpace(cells[0]) == "" {
			continue
		}
		if header == nil {
			header = cells
			if onHeader != nil {
				onHeader(header)
			}
			continue
		}
		if isCaptionLine(cells[0]) {
			continue
		}
		if err := onRow(cells); err != nil {
			if errors.Is(err, errStopScan) {
				return nil
			}
			return err
		}
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		return fmt.Errorf("read table: %w", err)
	}
	return nil
}

// isCaptionLine reports whether a first field marks the secondary English
// header line present in every source file. Data rows start with CJK text or
// digits, never a Latin letter.
func isCaptionLine(field string) bool {
	if field == "" {
		return false
	}
	c := field[0]
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// fieldAt returns the row value at idx, tolerating rows with missing trailing
// fields by treating them as empty.
func fieldAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// indexOf returns the position of name in header, or -1.
func indexOf(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}
