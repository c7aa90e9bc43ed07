package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// CSVWriter renders datasets as RFC 4180 CSV.
type CSVWriter struct{}

// Render produces CSV encoded bytes for the dataset.
func (CSVWriter) Render(data Dataset) ([]byte, error) {
	if err := data.validate(); err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	if err := writer.WriteAll(data.Rows); err != nil {
		return nil, fmt.Errorf("write csv rows: %w", err)
	}
	return buf.Bytes(), nil
}
