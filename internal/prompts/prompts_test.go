package prompts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProcurement_Prompts_Load(t *testing.T) {
	t.Parallel()

	for _, name := range []string{Generate, Narrate, Explain} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			p, err := Load(name)
			require.NoError(t, err)
			require.NotEmpty(t, p)
		})
	}

	t.Run("generate has schema placeholder", func(t *testing.T) {
		t.Parallel()
		require.Contains(t, MustLoad(Generate), "{{SCHEMA_CONTEXT}}")
	})

	t.Run("missing prompt", func(t *testing.T) {
		t.Parallel()
		_, err := Load("MISSING.md")
		require.Error(t, err)
	})
}
