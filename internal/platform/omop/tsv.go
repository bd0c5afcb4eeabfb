package omop

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

var fieldSanitizer = strings.NewReplacer("\t", "", "\r", "", "\n", "")

// SanitizeField strips the characters that would break the TSV framing.
func SanitizeField(v string) string {
	return fieldSanitizer.Replace(v)
}

// WriteTSV writes a header line followed by one line per row. Values are not
// quoted; embedded tab, CR and LF characters are removed.
func WriteTSV(w io.Writer, columns []string, rows [][]string) error {
	bw := bufio.NewWriter(w)
	if err := writeLine(bw, columns); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writeLine(bw, row); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeLine(bw *bufio.Writer, fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if err := bw.WriteByte('\t'); err != nil {
				return err
			}
		}
		if _, err := bw.WriteString(SanitizeField(f)); err != nil {
			return err
		}
	}
	return bw.WriteByte('\n')
}

// ReadTSV parses a buffer produced by WriteTSV back into its header and rows.
func ReadTSV(r io.Reader) ([]string, [][]string, error) {
	br := bufio.NewReader(r)
	var header []string
	var rows [][]string
	line := 0
	for {
		s, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, nil, fmt.Errorf("read tsv line %d: %w", line+1, err)
		}
		if s == "" && err == io.EOF {
			break
		}
		line++
		fields := strings.Split(strings.TrimSuffix(s, "\n"), "\t")
		if header == nil {
			header = fields
		} else {
			if len(fields) != len(header) {
				return nil, nil, fmt.Errorf("tsv line %d: expected %d fields, got %d", line, len(header), len(fields))
			}
			rows = append(rows, fields)
		}
		if err == io.EOF {
			break
		}
	}
	if header == nil {
		return nil, nil, fmt.Errorf("tsv: missing header")
	}
	return header, rows, nil
}
