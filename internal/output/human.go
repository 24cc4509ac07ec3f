// human.go — human-readable output formatter.
package output

import (
	"fmt"
	"strings"
)

// HumanFormatter produces human-readable output.
type HumanFormatter struct{}

// Format writes a human-readable representation of one emission.
func (h *HumanFormatter) Format(w Writer, e *Emission) error {
	var sb strings.Builder

	if e.Error != "" {
		sb.WriteString(fmt.Sprintf("[%d] %s ERROR: %s\n", e.Sequence, e.Attribute, e.Error))
	} else {
		sb.WriteString(fmt.Sprintf("[%d] %s (%s) = %s\n", e.Sequence, e.Attribute, e.Kind, e.Value))
	}

	_, err := w.Write([]byte(sb.String()))
	return err
}
