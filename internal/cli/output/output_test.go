package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"", FormatTable},
		{"TABLE", FormatTable},
		{"json", FormatJSON},
		{" yml ", FormatYAML},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestPrint(t *testing.T) {
	table := NewTable("kind", "blocks")
	table.AddRow("sessions", "2")
	data := map[string]int{"sessions": 2}

	var buf bytes.Buffer
	require.NoError(t, Print(&buf, FormatTable, table, data))
	assert.Contains(t, buf.String(), "KIND")
	assert.Contains(t, buf.String(), "sessions")

	buf.Reset()
	require.NoError(t, Print(&buf, FormatJSON, table, data))
	assert.JSONEq(t, `{"sessions": 2}`, buf.String())

	buf.Reset()
	require.NoError(t, Print(&buf, FormatYAML, table, data))
	assert.Equal(t, "sessions: 2\n", buf.String())
}
