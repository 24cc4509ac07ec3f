// json.go — JSON output formatter.
package output

import "encoding/json"

// JSONFormatter produces one JSON object per line (newline-delimited
// JSON), suitable for piping into jq or a log aggregator.
type JSONFormatter struct{}

// Format writes a JSON representation of one emission.
func (f *JSONFormatter) Format(w Writer, e *Emission) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
