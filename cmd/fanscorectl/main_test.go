package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ichi0g0y/twitch-fanscore/internal/env"
	"github.com/stretchr/testify/require"
)

const templatesYAML = `templates:
  - id: stickers
    name: Stickers
    mode: manual
    items:
      - type: keep
        label: Sticker
        percentage: 100
  - name: Gift wheel
    mode: spoon
    division: 100
    enabled: false
    items:
      - type: ticket
        label: Lotto
        percentage: 50
        value: 2
`

func run(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(env.Env{DBPath: dbPath, StoreBackend: "sqlite"})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestImportTemplatesAndGrantRoulette(t *testing.T) {
	db := filepath.Join(t.TempDir(), "fanscore.db")

	out, err := run(t, db, "import-templates", writeFile(t, "templates.yaml", templatesYAML))
	require.NoError(t, err)
	require.Contains(t, out, "saved stickers Stickers")
	require.Contains(t, out, "Gift wheel")

	out, err = run(t, db, "grant", "roulette", "u1", "stickers", "3")
	require.NoError(t, err)
	require.Equal(t, "u1 now has 3 tickets for Stickers\n", out)

	out, err = run(t, db, "grant", "roulette", "u1", "stickers", "-1")
	require.NoError(t, err)
	require.Equal(t, "u1 now has 2 tickets for Stickers\n", out)

	out, err = run(t, db, "user", "u1")
	require.NoError(t, err)
	require.Contains(t, out, "roulette tickets: stickers x2")
}

func TestImportTemplatesRejectsInvalid(t *testing.T) {
	db := filepath.Join(t.TempDir(), "fanscore.db")

	_, err := run(t, db, "import-templates", writeFile(t, "bad.yaml", `templates:
  - name: Broken
    items:
      - type: keep
        label: A
        percentage: 80
      - type: keep
        label: B
        percentage: 30
`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "Broken")

	_, err = run(t, db, "import-templates", writeFile(t, "typo.yaml", "templats: []\n"))
	require.Error(t, err)
}

func TestImportQuiz(t *testing.T) {
	db := filepath.Join(t.TempDir(), "fanscore.db")
	file := writeFile(t, "quiz.yaml", `questions:
  - question: 1+1?
    answer: "2"
  - question: Capital of Japan?
    answer: Tokyo
`)

	out, err := run(t, db, "import-quiz", file)
	require.NoError(t, err)
	require.Equal(t, "saved 2 questions\n", out)

	out, err = run(t, db, "import-quiz", "--append", file)
	require.NoError(t, err)
	require.Equal(t, "saved 4 questions\n", out)

	_, err = run(t, db, "import-quiz", writeFile(t, "empty.yaml", `questions:
  - question: no answer
`))
	require.Error(t, err)
}

func TestGrantPersistsAcrossRuns(t *testing.T) {
	db := filepath.Join(t.TempDir(), "fanscore.db")

	out, err := run(t, db, "grant", "lotto", "u1", "5")
	require.NoError(t, err)
	require.Equal(t, "u1 now has 5 lotto tickets\n", out)

	out, err = run(t, db, "grant", "lotto", "u1", "-2")
	require.NoError(t, err)
	require.Equal(t, "u1 now has 3 lotto tickets\n", out)

	out, err = run(t, db, "grant", "exp", "u1", "600")
	require.NoError(t, err)
	require.Equal(t, "u1 is Lv.2 with 600 exp\n", out)

	out, err = run(t, db, "grant", "exp", "u1", "-150")
	require.NoError(t, err)
	require.Equal(t, "u1 is Lv.1 with 450 exp\n", out)

	out, err = run(t, db, "--debug=false", "grant", "lotto", "u1", "-1")
	require.NoError(t, err)
	require.Equal(t, "u1 now has 2 lotto tickets\n", out)

	out, err = run(t, db, "user", "u1")
	require.NoError(t, err)
	require.Contains(t, out, "level: 1")
	require.Contains(t, out, "lotto tickets: 2")

	_, err = run(t, db, "grant", "lotto", "u1", "zero")
	require.Error(t, err)
}

func TestUnsupportedBackend(t *testing.T) {
	db := filepath.Join(t.TempDir(), "fanscore.db")
	_, err := run(t, db, "--store", "memory", "user", "u1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported store backend")
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "v"))
}
