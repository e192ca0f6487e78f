package intake

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecord_ValidLine(t *testing.T) {
	out := ParseRecord(1, "Martines,02/23/1961,30331,9631")
	require.True(t, out.Valid(), "expected a valid record, got %+v", out.Reject)
	assert.Equal(t, "Martines", out.Record.LastName)
	assert.Equal(t, "02/23/1961", out.Record.DOB)
	assert.Equal(t, "30331", out.Record.Zip)
	assert.Equal(t, "9631", out.Record.Last4)
	assert.Equal(t, 1, out.Record.Index)
}

func TestParseRecord_Idempotent(t *testing.T) {
	out := ParseRecord(1, "O'Brien-Smith, 2/23/61, 30331-1234, 0042")
	require.True(t, out.Valid())

	canonical := fmt.Sprintf("%s,%s,%s,%s",
		out.Record.LastName, out.Record.DOB, out.Record.Zip, out.Record.Last4)
	again := ParseRecord(1, canonical)
	require.True(t, again.Valid())
	assert.Equal(t, out.Record, again.Record)
}

func TestParseRecord_FieldCount(t *testing.T) {
	out := ParseRecord(1, "Martines,02/23/1961,30331")
	require.False(t, out.Valid())
	assert.Equal(t, RejectBadFieldCount, out.Reject.Kind)
	assert.Equal(t, "got: 3", out.Reject.Detail)
}

func TestParseRecord_FieldValidation(t *testing.T) {
	cases := []struct {
		name string
		line string
		kind RejectKind
		val  string
	}{
		{"numeric last name", "M4rtines,02/23/1961,30331,9631", RejectInvalidName, "M4rtines"},
		{"empty last name", ",02/23/1961,30331,9631", RejectInvalidName, ""},
		{"bad date", "Martines,13/45/1961,30331,9631", RejectInvalidDOB, "13/45/1961"},
		{"year out of range", "Martines,02/23/1861,30331,9631", RejectInvalidDOB, "02/23/1861"},
		{"short zip", "Martines,02/23/1961,3033,9631", RejectInvalidZip, "3033"},
		{"alpha last4", "Martines,02/23/1961,30331,96a1", RejectInvalidLast4, "96a1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := ParseRecord(1, tc.line)
			require.False(t, out.Valid())
			assert.Equal(t, tc.kind, out.Reject.Kind)
			assert.Equal(t, tc.val, out.Reject.Value)
			assert.NotEmpty(t, out.Reject.Reason())
		})
	}
}

func TestParseRecord_PipeAndWidthVariants(t *testing.T) {
	out := ParseRecord(1, "Martines｜０２/23/1961|30331|9631")
	require.True(t, out.Valid(), "reject: %+v", out.Reject)
	assert.Equal(t, "02/23/1961", out.Record.DOB)
}

func TestNormalizeDOB_Canonicalization(t *testing.T) {
	for _, raw := range []string{"1961-02-23", "02/23/1961", "2/23/61", "02-23-1961"} {
		got, err := NormalizeDOB(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, "02/23/1961", got, raw)
	}
}

func TestNormalizeDOB_Pivot(t *testing.T) {
	got, err := NormalizeDOB("1/5/07")
	require.NoError(t, err)
	assert.Equal(t, "01/05/2007", got)

	got, err = NormalizeDOB("1/5/31")
	require.NoError(t, err)
	assert.Equal(t, "01/05/1931", got)
}

func TestParseBatch_SkipsBlankAndComments(t *testing.T) {
	text := strings.Join([]string{
		"# header comment",
		"Martines,02/23/1961,30331,9631",
		"",
		"// another comment",
		"Smith,bad-date,12345,1111",
	}, "\n")

	outcomes := ParseBatch(text)
	require.Len(t, outcomes, 2)
	assert.Equal(t, 1, outcomes[0].Index)
	assert.True(t, outcomes[0].Valid())
	assert.Equal(t, 2, outcomes[1].Index)
	require.False(t, outcomes[1].Valid())
	assert.Equal(t, RejectInvalidDOB, outcomes[1].Reject.Kind)
}

func TestParseBatch_DenseIndexes(t *testing.T) {
	var lines []string
	for i := 0; i < 20; i++ {
		lines = append(lines, "Martines,02/23/1961,30331,9631", "")
	}
	outcomes := ParseBatch(strings.Join(lines, "\n"))
	require.Len(t, outcomes, 20)
	for i, out := range outcomes {
		assert.Equal(t, i+1, out.Index)
	}
}
