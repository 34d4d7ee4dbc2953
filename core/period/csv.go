package period

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
)

// CSVSource reads roster rows from CSV data. The first record is a header
// whose column names are matched case-insensitively, with spaces treated
// as underscores (e.g. "Year Level" and "year_level" both match).
type CSVSource struct {
	reader *csv.Reader
	cols   map[string]int
}

var _ RosterSource = (*CSVSource)(nil)

var rosterColumns = []string{
	"id_number", "first_name", "middle_name", "last_name", "suffix",
	"email", "department", "course", "year_level", "block",
}

func NewCSVSource(r io.Reader) (*CSVSource, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "reading roster header")
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[normalizeHeader(name)] = i
	}
	for _, col := range []string{"id_number", "last_name", "department", "course", "year_level", "block"} {
		if _, ok := cols[col]; !ok {
			return nil, errors.Errorf("roster header is missing the %q column", col)
		}
	}

	return &CSVSource{reader: reader, cols: cols}, nil
}

// Next returns the next roster row; io.EOF signals the end of the data.
func (src *CSVSource) Next() (RosterRow, error) {
	record, err := src.reader.Read()
	if err != nil {
		if err == io.EOF {
			return RosterRow{}, io.EOF
		}
		return RosterRow{}, errors.Wrap(err, "reading roster row")
	}

	yearLevel, err := strconv.Atoi(core.CleanString(src.field(record, "year_level")))
	if err != nil {
		return RosterRow{}, errors.Wrap(err, "parsing year_level")
	}

	return RosterRow{
		IDNumber:   core.CleanString(src.field(record, "id_number")),
		FirstName:  core.CleanString(src.field(record, "first_name")),
		MiddleName: core.CleanString(src.field(record, "middle_name")),
		LastName:   core.CleanString(src.field(record, "last_name")),
		Suffix:     core.CleanString(src.field(record, "suffix")),
		Email:      core.CleanString(src.field(record, "email"), true),
		Department: core.CleanString(src.field(record, "department")),
		Course:     core.CleanString(src.field(record, "course")),
		YearLevel:  yearLevel,
		Block:      core.CleanString(src.field(record, "block")),
	}, nil
}

func (src *CSVSource) field(record []string, col string) string {
	idx, ok := src.cols[col]
	if !ok || idx >= len(record) {
		return ""
	}
	return record[idx]
}

func normalizeHeader(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.ReplaceAll(name, " ", "_")
}
