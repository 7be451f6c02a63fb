package bulkimport

import (
	"strings"
	"testing"

	"github.com/ignite/loadboard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const simpleHeader = "Origin,Destination,VehicleType,Weight,Price"

func TestParseRows(t *testing.T) {
	data := "\ufeff" + simpleHeader + "\r\n" +
		"Dallas,Atlanta,Van,1000,\"$1,200\"\r\n" +
		"\r\n" +
		" , , , , \n" +
		"Houston,Memphis\n"

	parsed, err := ParseRows([]byte(data), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Origin", "Destination", "VehicleType", "Weight", "Price"}, parsed.Headers)
	require.Len(t, parsed.Rows, 2)
	assert.Equal(t, "$1,200", parsed.Rows[0]["Price"])
	assert.Equal(t, "Memphis", parsed.Rows[1]["Destination"])
	assert.Equal(t, "", parsed.Rows[1]["Price"])
}

func TestParseRows_DropsCellsPastHeader(t *testing.T) {
	parsed, err := ParseRows([]byte("a,b\n1,2,3\n"), 0)
	require.NoError(t, err)
	assert.Equal(t, domain.RawRow{"a": "1", "b": "2"}, parsed.Rows[0])
}

func TestParseRows_Errors(t *testing.T) {
	t.Run("empty file", func(t *testing.T) {
		_, err := ParseRows(nil, 0)
		assert.ErrorIs(t, err, ErrNoDataRows)
	})

	t.Run("header only", func(t *testing.T) {
		_, err := ParseRows([]byte(simpleHeader+"\n\n"), 0)
		assert.ErrorIs(t, err, ErrNoDataRows)
	})

	t.Run("row cap", func(t *testing.T) {
		var b strings.Builder
		b.WriteString(simpleHeader + "\n")
		for i := 0; i < 4; i++ {
			b.WriteString("Dallas,Atlanta,Van,1,2\n")
		}
		_, err := ParseRows([]byte(b.String()), 3)
		assert.ErrorIs(t, err, ErrTooManyRows)

		parsed, err := ParseRows([]byte(b.String()), 4)
		require.NoError(t, err)
		assert.Len(t, parsed.Rows, 4)
	})
}

func TestCheckHeader(t *testing.T) {
	t.Run("exact match", func(t *testing.T) {
		hc, err := CheckHeader("\ufeff"+simpleHeader, domain.TemplateSimple)
		require.NoError(t, err)
		assert.True(t, hc.OK)
		assert.Empty(t, hc.Errors)
	})

	t.Run("quoted header", func(t *testing.T) {
		hc, err := CheckHeader(`"Origin","Destination","VehicleType","Weight","Price"`, domain.TemplateSimple)
		require.NoError(t, err)
		assert.True(t, hc.OK)
	})

	t.Run("renamed and missing", func(t *testing.T) {
		hc, err := CheckHeader("Origin,Dest,VehicleType,Weight", domain.TemplateSimple)
		require.NoError(t, err)
		assert.False(t, hc.OK)
		assert.Equal(t, []string{
			`column 2: expected "Destination", found "Dest"`,
			`column 5: missing expected column "Price"`,
		}, hc.Errors)
	})

	t.Run("extra column", func(t *testing.T) {
		hc, err := CheckHeader(simpleHeader+",Notes", domain.TemplateSimple)
		require.NoError(t, err)
		assert.Equal(t, []string{`column 6: unexpected extra column "Notes"`}, hc.Errors)
	})

	t.Run("names are case sensitive", func(t *testing.T) {
		hc, err := CheckHeader(strings.ToLower(simpleHeader), domain.TemplateSimple)
		require.NoError(t, err)
		assert.Len(t, hc.Errors, 5)
	})

	t.Run("unknown template", func(t *testing.T) {
		_, err := CheckHeader(simpleHeader, "bespoke")
		assert.ErrorIs(t, err, ErrUnknownTemplate)
	})
}

func TestTemplates(t *testing.T) {
	list := Templates()
	require.Len(t, list, 3)
	assert.Equal(t, domain.TemplateSimple, list[0].Name)
	assert.Len(t, Headers(domain.TemplateStandard), 16)
	assert.Len(t, Headers(domain.TemplateComplete), 21)
	assert.Equal(t, simpleHeader, HeaderLine(domain.TemplateSimple))

	h := Headers(domain.TemplateSimple)
	h[0] = "changed"
	assert.Equal(t, "Origin", Headers(domain.TemplateSimple)[0])
	assert.Nil(t, Headers("bespoke"))
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "a,b", FirstLine([]byte("a,b\r\n1,2")))
	assert.Equal(t, "a,b", FirstLine([]byte("a,b")))
}

func TestCheckFileType(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		head    []byte
		wantErr error
	}{
		{"csv", "loads.csv", []byte(simpleHeader + "\nDallas,Atlanta,Van,1,2\n"), nil},
		{"plain text", "loads.txt", []byte("hello"), nil},
		{"empty", "loads.csv", nil, nil},
		{"xlsx by name", "loads.XLSX", []byte(simpleHeader), ErrExcelNotSupported},
		{"zip content renamed", "loads.csv", []byte("PK\x03\x04\x14\x00\x06\x00\x08\x00\x00\x00!\x00"), ErrExcelNotSupported},
		{"image", "loads.csv", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), ErrUnsupportedFileType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckFileType(tt.file, tt.head)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
