package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/malbeclabs/procurement-agent/internal/agent"
	"github.com/malbeclabs/procurement-agent/internal/executor"
	"github.com/malbeclabs/procurement-agent/internal/importer"
	"github.com/malbeclabs/procurement-agent/internal/query"
	"github.com/malbeclabs/procurement-agent/internal/schema"
	"github.com/stretchr/testify/require"
)

func TestProcurement_CLI_PrintEnvelope(t *testing.T) {
	t.Parallel()

	q, err := query.ParseStructuredQuery([]byte(`{"operation":"aggregate","pipeline":[{"$group":{"_id":"$department_name","spend":{"$sum":"$total_price"}}}]}`))
	require.NoError(t, err)

	env := &agent.Envelope{
		Success:  true,
		Response: "Corrections spent the most.",
		Data: []executor.Row{
			{"_id": "Corrections", "spend": 1234.5},
			{"_id": "Health", "spend": 99.0, "orders": int64(3)},
		},
		Count:      2,
		TotalCount: 40,
		Query:      q,
	}

	var buf bytes.Buffer
	printEnvelope(&buf, env, true)
	out := buf.String()

	require.True(t, strings.HasPrefix(out, "Corrections spent the most.\n"))
	require.Contains(t, out, `Query: {"operation":"aggregate"`)
	require.Contains(t, out, "1234.50")
	require.Contains(t, out, "Showing 2 of 40 results.")

	header := ""
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "_id") {
			header = line
			break
		}
	}
	require.NotEmpty(t, header)
	require.Less(t, strings.Index(header, "_id"), strings.Index(header, "orders"))
	require.Less(t, strings.Index(header, "orders"), strings.Index(header, "spend"))
}

func TestProcurement_CLI_PrintEnvelope_NoRows(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printEnvelope(&buf, &agent.Envelope{Response: "Total: 7", Count: 7, TotalCount: 7}, false)
	require.Equal(t, "Total: 7\n", buf.String())
}

func TestProcurement_CLI_FormatCell(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", formatCell(nil))
	require.Equal(t, "3.14", formatCell(3.14159))
	require.Equal(t, "42", formatCell(int64(42)))
	require.Equal(t, "Acme", formatCell("Acme"))
	require.Equal(t, "true", formatCell(true))
	require.Equal(t, `{"year":2014}`, formatCell(map[string]any{"year": int64(2014)}))
	require.Equal(t, `["a","b"]`, formatCell([]any{"a", "b"}))
}

func TestProcurement_CLI_PrintDescriptor(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printDescriptor(&buf, schema.Descriptor{})
	require.Contains(t, buf.String(), "collection is empty")

	buf.Reset()
	printDescriptor(&buf, schema.Descriptor{
		"total_price": {Type: "double", NullPercentage: 2.5, Examples: []string{"10.5", "99"}, SourceColumn: "Total Price"},
	})
	out := buf.String()
	require.Contains(t, out, "total_price")
	require.Contains(t, out, "2.5")
	require.Contains(t, out, "10.5, 99")
	require.Contains(t, out, "Total Price")
}

func TestProcurement_CLI_PrintImportStats(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printImportStats(&buf, &importer.Stats{Rows: 10, Inserted: 9, Errors: 1})
	out := buf.String()
	require.Contains(t, out, "Rows processed")
	require.Contains(t, out, "Errors")
}

func TestProcurement_CLI_Commands(t *testing.T) {
	t.Parallel()

	t.Run("help lists subcommands", func(t *testing.T) {
		t.Parallel()

		cmd := NewRootCmd()
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		cmd.SetErr(&buf)
		cmd.SetArgs([]string{})
		require.NoError(t, cmd.Execute())
		for _, sub := range []string{"ask", "schema", "import"} {
			require.Contains(t, buf.String(), sub)
		}
	})

	t.Run("ask requires a question", func(t *testing.T) {
		t.Parallel()

		cmd := NewRootCmd()
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		cmd.SetErr(&buf)
		cmd.SetArgs([]string{"ask"})
		require.Error(t, cmd.Execute())
	})

	t.Run("import requires a file", func(t *testing.T) {
		t.Parallel()

		cmd := NewRootCmd()
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		cmd.SetErr(&buf)
		cmd.SetArgs([]string{"import"})
		require.Error(t, cmd.Execute())
	})
}
