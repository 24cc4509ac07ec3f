// csv.go — CSV output formatter.
package output

import (
	"encoding/csv"
	"strconv"
	"strings"
)

// CSVFormatter produces CSV output: one header row followed by one
// row per emission. wroteHeader records whether this formatter has
// already written the header, whichever Writer it went to — a demo CLI
// prints one continuous stream, so the header is written once, on the
// first emission.
type CSVFormatter struct {
	wroteHeader bool
}

// Format writes e as a CSV row, writing the header first if this is
// the first call.
func (f *CSVFormatter) Format(w Writer, e *Emission) error {
	var sb strings.Builder
	cw := csv.NewWriter(&sb)

	if !f.wroteHeader {
		if err := cw.Write([]string{"sequence", "attribute", "kind", "value", "error"}); err != nil {
			return err
		}
		f.wroteHeader = true
	}

	row := []string{strconv.Itoa(e.Sequence), e.Attribute, e.Kind, e.Value, e.Error}
	if err := cw.Write(row); err != nil {
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}

	_, err := w.Write([]byte(sb.String()))
	return err
}
