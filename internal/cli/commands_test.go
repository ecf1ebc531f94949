package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the CLI with args and returns what it wrote to stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

// persisted writes the demo graph to a fresh data directory.
func persisted(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "data")
	_, err := run(t, "demo", "--persist", "--data", dir)
	require.NoError(t, err)
	return dir
}

func TestDemo(t *testing.T) {
	out, err := run(t, "demo")
	require.NoError(t, err)

	assert.Contains(t, out, "=== quadra demo ===")
	assert.Contains(t, out, "Loaded 15 quads")
	assert.Contains(t, out, "Everyone Alice reaches through foaf:knows+")
	assert.Contains(t, out, "Alice in Graph1")
	assert.Contains(t, out, "2019")
	assert.Contains(t, out, "_2 rows_")
	assert.Contains(t, out, "_4 rows_")
	assert.Contains(t, out, "=== demo complete ===")
}

func TestDemoTraceWritesEvents(t *testing.T) {
	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"demo", "--trace"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, stderr.String(), "=== select query")
	assert.Contains(t, stderr.String(), "Plan after")
}

func TestMatchAndReachGolden(t *testing.T) {
	dir := persisted(t)
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	cases := map[string][]string{
		"match_knows":        {"match", "-p", "http://xmlns.com/foaf/0.1/knows"},
		"match_graph1":       {"match", "-g", "<http://example.org/graph1>"},
		"reach_plus":         {"reach", "--from", "http://example.org/alice", "--pred", "http://xmlns.com/foaf/0.1/knows"},
		"reach_inverse_star": {"reach", "--from", "http://example.org/dave", "--pred", "http://xmlns.com/foaf/0.1/knows", "--inverse", "--mode", "star"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			out, err := run(t, append(args, "--data", dir)...)
			require.NoError(t, err)
			g.Assert(t, name, []byte(out))
		})
	}
}

func TestMatchDefaultGraph(t *testing.T) {
	dir := persisted(t)
	out, err := run(t, "match", "-s", "http://example.org/alice", "-p", "http://xmlns.com/foaf/0.1/name", "-g", "DEFAULT", "--data", dir)
	require.NoError(t, err)
	assert.Equal(t, "<http://example.org/alice> <http://xmlns.com/foaf/0.1/name> \"Alice\" .\n", out)
}

func TestReachOptional(t *testing.T) {
	dir := persisted(t)
	out, err := run(t, "reach", "--from", "http://example.org/alice", "--pred", "http://xmlns.com/foaf/0.1/knows", "--mode", "opt", "--data", dir)
	require.NoError(t, err)
	assert.Equal(t, "<http://example.org/alice>\n<http://example.org/bob>\n", out)
}

func TestCommandErrors(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	tests := map[string][]string{
		"bad mode":        {"reach", "--from", "http://example.org/a", "--pred", "http://example.org/p", "--mode", "twice"},
		"literal pred":    {"reach", "--from", "http://example.org/a", "--pred", `"p"`},
		"missing from":    {"reach", "--pred", "http://example.org/p"},
		"open literal":    {"match", "-o", `"open`},
		"bad log format":  {"stats", "--log-format", "xml"},
		"bad compression": {"backup", "--out", "a.qdrb", "--compression", "gzip"},
		"missing archive": {"restore", "--in", "absent.qdrb"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := run(t, append(args, "--data", dir)...)
			assert.Error(t, err)
		})
	}
}

func TestStatsAndVacuum(t *testing.T) {
	dir := persisted(t)

	out, err := run(t, "stats", "--data", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "quads")
	assert.Contains(t, out, "15")
	assert.Contains(t, out, "named graphs")
	assert.Contains(t, out, "index spog")

	_, err = run(t, "match", "--data", dir)
	require.NoError(t, err)

	out, err = run(t, "vacuum", "--data", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "reclaimed terms")
	assert.Contains(t, out, "live terms")
}

func TestBackupRestore(t *testing.T) {
	tmp := t.TempDir()
	archives := filepath.Join(tmp, "archives")
	configPath := filepath.Join(tmp, "quadra.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(fmt.Sprintf("backup:\n  dir: %s\n  compression: lz4\n", archives)), 0o600))

	src := persisted(t)
	out, err := run(t, "backup", "--config", configPath, "--data", src, "--out", "snap.qdrb")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote snap.qdrb")
	assert.Contains(t, out, "lz4")
	assert.FileExists(t, filepath.Join(archives, "snap.qdrb"))

	dst := filepath.Join(tmp, "restored")
	out, err = run(t, "restore", "--config", configPath, "--data", dst, "--in", "snap.qdrb")
	require.NoError(t, err)
	assert.Contains(t, out, "15 quads")

	want, err := run(t, "match", "--data", src)
	require.NoError(t, err)
	got, err := run(t, "match", "--data", dst)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestMatchOutputLoadsBack(t *testing.T) {
	src := persisted(t)
	dump, err := run(t, "match", "--data", src)
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), "dump.nq")
	require.NoError(t, os.WriteFile(file, []byte(dump), 0o600))

	dst := filepath.Join(t.TempDir(), "copy")
	out, err := run(t, "load", file, "--data", dst)
	require.NoError(t, err)
	assert.Contains(t, out, "15 quads")

	got, err := run(t, "match", "--data", dst)
	require.NoError(t, err)
	assert.Equal(t, dump, got)
}

func TestLoadStdin(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	cmd := NewRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(bytes.NewBufferString("<http://example.org/a> <http://example.org/p> \"x\" .\nnot a statement\n"))
	cmd.SetArgs([]string{"load", "-", "--data", dir})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}
