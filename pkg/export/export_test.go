package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sample() Dataset {
	return Dataset{
		Title:   "Applications",
		Headers: []string{"Name", "Status"},
		Rows:    [][]string{{"Ana", "Approved"}, {"Budi, Jr.", "Pending"}},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	f, err = ParseFormat(" CSV ")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)
	assert.Equal(t, "text/csv", f.ContentType())

	_, err = ParseFormat("pdf")
	assert.Error(t, err)
}

func TestCSVWriterQuotes(t *testing.T) {
	out, err := CSVWriter{}.Render(sample())
	require.NoError(t, err)
	assert.Equal(t, "Name,Status\nAna,Approved\n\"Budi, Jr.\",Pending\n", string(out))
}

func TestWritersRejectRaggedRows(t *testing.T) {
	data := Dataset{Headers: []string{"a", "b"}, Rows: [][]string{{"only-one"}}}
	_, err := CSVWriter{}.Render(data)
	assert.Error(t, err)
	_, err = XLSXWriter{}.Render(data)
	assert.Error(t, err)
	_, err = CSVWriter{}.Render(Dataset{})
	assert.Error(t, err)
}

func TestXLSXWriterRoundTrip(t *testing.T) {
	out, err := WriterFor(FormatXLSX).Render(sample())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	rows, err := f.GetRows("Applications")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Name", "Status"}, rows[0])
	assert.Equal(t, []string{"Budi, Jr.", "Pending"}, rows[2])
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "Night shifts 202401", sheetName("Night shifts 2024/01"))
	assert.Len(t, []rune(sheetName("an extremely long title for a worksheet name")), 31)
	assert.Equal(t, defaultSheet, sheetName("///"))
}

func TestPDFRenderers(t *testing.T) {
	table, err := PDFTable(sample())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(table, []byte("%PDF")))

	cards := make([]Card, 9)
	for i := range cards {
		cards[i] = Card{Name: "Student", Kind: "STUDENT", CourseName: "10-day", Placement: "Group A", Room: "R1"}
	}
	out, err := PDFCards(cards)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	out, err = PDFCertificates([]Certificate{{StudentName: "Ana", CourseName: "10-day", IssuedOn: "2024-02-01"}})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	_, err = PDFCards(nil)
	assert.Error(t, err)
	_, err = PDFCertificates(nil)
	assert.Error(t, err)
}
