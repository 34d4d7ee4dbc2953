package period

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCSVSource(t *testing.T) {
	t.Run("header names are normalized", func(t *testing.T) {
		data := "ID Number,First Name,Middle Name,Last Name,Suffix,Email,Department,Course,Year Level,Block\n" +
			"S-100, Thandi ,,Phiri,,THANDI@Example.com,CCS,BSIT,2,bsit  1a\n"
		src, err := NewCSVSource(strings.NewReader(data))
		require.NoError(t, err)

		row, err := src.Next()
		require.NoError(t, err)
		assert.Equal(t, RosterRow{
			IDNumber:   "S-100",
			FirstName:  "Thandi",
			LastName:   "Phiri",
			Email:      "thandi@example.com",
			Department: "CCS",
			Course:     "BSIT",
			YearLevel:  2,
			Block:      "bsit  1a",
		}, row)

		_, err = src.Next()
		assert.Equal(t, io.EOF, err)
	})

	t.Run("missing required column", func(t *testing.T) {
		data := "id_number,first_name,last_name\nS-100,Thandi,Phiri\n"
		_, err := NewCSVSource(strings.NewReader(data))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "department")
	})

	t.Run("optional columns may be absent", func(t *testing.T) {
		data := "id_number,last_name,department,course,year_level,block\n" +
			"S-100,Phiri,CCS,BSIT,1,BSIT 1A\n"
		src, err := NewCSVSource(strings.NewReader(data))
		require.NoError(t, err)

		row, err := src.Next()
		require.NoError(t, err)
		assert.Empty(t, row.FirstName)
		assert.Equal(t, "Phiri", row.LastName)
	})

	t.Run("non-numeric year level", func(t *testing.T) {
		data := "id_number,last_name,department,course,year_level,block\n" +
			"S-100,Phiri,CCS,BSIT,first,BSIT 1A\n"
		src, err := NewCSVSource(strings.NewReader(data))
		require.NoError(t, err)

		_, err = src.Next()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "year_level")
	})

	t.Run("empty file", func(t *testing.T) {
		_, err := NewCSVSource(strings.NewReader(""))
		assert.Error(t, err)
	})
}
