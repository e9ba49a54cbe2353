package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wrapret/filter"
	"wrapret/preprocess"
)

func TestTransform_ImportThenBody(t *testing.T) {
	p := New(Options{})
	input := "import { f } from \"x\";\n\nif (!f()) return;\ng();"

	out, changed, err := p.Transform(input, "app.js")
	require.NoError(t, err)
	assert.True(t, changed)

	// Import region (import line + blank line) survives verbatim at the top.
	assert.True(t, strings.HasPrefix(out, "import { f } from \"x\";\n\n"))
	// The body appears wrapped, byte-for-byte.
	assert.Contains(t, out, preprocess.WrapOpen+"if (!f()) return;\ng();"+preprocess.WrapClose)
	assert.True(t, strings.HasSuffix(out, preprocess.WrapClose))
}

func TestTransform_ImportInBodyFails(t *testing.T) {
	p := New(Options{})
	input := "g();\nimport { f } from \"x\";"

	_, _, err := p.Transform(input, "bad.js")
	require.Error(t, err)

	var impErr *preprocess.ImportError
	require.ErrorAs(t, err, &impErr)
	assert.Equal(t, 2, impErr.Line)
	assert.Contains(t, err.Error(), "bad.js")
}

func TestTransform_MultiLineImport(t *testing.T) {
	p := New(Options{})
	input := "import {\n  a,\n  b\n} from \"x\";\nbody();"

	out, changed, err := p.Transform(input, "app.js")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, strings.HasPrefix(out, "import {\n  a,\n  b\n} from \"x\";\n"))
	assert.Contains(t, out, preprocess.WrapOpen+"body();"+preprocess.WrapClose)
}

func TestTransform_EmptyInput(t *testing.T) {
	p := New(Options{})
	out, changed, err := p.Transform("", "empty.js")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "\n"+preprocess.WrapOpen+preprocess.WrapClose, out)
}

func TestTransform_IneligibleFilePassesThrough(t *testing.T) {
	f, err := filter.New([]string{"src/**/*.js"}, nil)
	require.NoError(t, err)
	p := New(Options{Filter: f})

	out, changed, err := p.Transform("g();\nimport { f } from \"x\";", "vendor/lib.js")
	require.NoError(t, err) // not even the guard runs
	assert.False(t, changed)
	assert.Empty(t, out)
}

func TestCheck(t *testing.T) {
	p := New(Options{})

	eligible, err := p.Check("import { f } from \"x\";\ng();", "ok.js")
	assert.True(t, eligible)
	assert.NoError(t, err)

	eligible, err = p.Check("g();\nimport { f } from \"x\";", "bad.js")
	assert.True(t, eligible)
	require.Error(t, err)

	f, ferr := filter.New(nil, []string{"**/*.min.js"})
	require.NoError(t, ferr)
	p = New(Options{Filter: f})
	eligible, err = p.Check("g();\nimport { f } from \"x\";", "dist/app.min.js")
	assert.False(t, eligible)
	assert.NoError(t, err)
}

func TestTransformFile_OutDir(t *testing.T) {
	dir := t.TempDir()
	srcDir := filepath.Join(dir, "in")
	require.NoError(t, os.MkdirAll(srcDir, 0o755))
	src := filepath.Join(srcDir, "app.js")
	require.NoError(t, os.WriteFile(src, []byte("import { f } from \"x\";\nrun();"), 0o644))

	outDir := filepath.Join(dir, "out")
	p := New(Options{})
	res := p.TransformFile(src, WriteOptions{OutDir: outDir})
	require.NoError(t, res.Err)
	assert.True(t, res.Changed)

	// Absolute inputs are flattened to their base name under OutDir.
	got, err := os.ReadFile(filepath.Join(outDir, "app.js"))
	require.NoError(t, err)
	assert.Contains(t, string(got), preprocess.WrapOpen+"run();"+preprocess.WrapClose)
}

func TestTransformFile_OutDirEscapingPathIsFlattened(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "b"), 0o755))
	src := filepath.Join(dir, "a", "file.js")
	require.NoError(t, os.WriteFile(src, []byte("run();"), 0o644))
	t.Chdir(filepath.Join(dir, "b"))

	outDir := filepath.Join(dir, "b", "out")
	p := New(Options{})
	res := p.TransformFile(filepath.Join("..", "a", "file.js"), WriteOptions{OutDir: outDir})
	require.NoError(t, res.Err)
	assert.True(t, res.Changed)

	// The .. segments must not place the output outside OutDir.
	got, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, "run();", string(got))

	wrapped, err := os.ReadFile(filepath.Join(outDir, "file.js"))
	require.NoError(t, err)
	assert.Contains(t, string(wrapped), preprocess.WrapOpen+"run();"+preprocess.WrapClose)
}

func TestTransformFile_InPlace(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "app.js")
	require.NoError(t, os.WriteFile(src, []byte("run();"), 0o644))

	p := New(Options{})
	res := p.TransformFile(src, WriteOptions{InPlace: true})
	require.NoError(t, res.Err)

	got, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(got), preprocess.WrapClose))
}

func TestRun_Parallel(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a.js", "b.js", "c.js", "d.js"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("import { f } from \"x\";\nrun();"), 0o644))
		paths = append(paths, p)
	}
	// One file with a violation.
	bad := filepath.Join(dir, "bad.js")
	require.NoError(t, os.WriteFile(bad, []byte("run();\nimport { f } from \"x\";"), 0o644))
	paths = append(paths, bad)

	p := New(Options{})
	results := p.Run(paths, 3, WriteOptions{InPlace: true})
	require.Len(t, results, len(paths))
	assert.Equal(t, 1, FailedCount(results))

	// Results come back in input order.
	for i, r := range results {
		assert.Equal(t, paths[i], r.Path)
	}
	require.Error(t, results[len(results)-1].Err)
	assert.Contains(t, results[len(results)-1].Err.Error(), "bad.js")
}
