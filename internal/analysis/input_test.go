package analysis

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBatch(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"array", `[{"filename":"a.js","status":"added","patch":"x"}]`, 1},
		{"wrapped", `{"files":[{"filename":"a.js"},{"filename":"b.js","status":"removed"}]}`, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, err := DecodeBatch(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Len(t, files, tt.want)
			for _, f := range files {
				assert.NotEmpty(t, f.Status)
			}
		})
	}

	files, _ := DecodeBatch(strings.NewReader(`{"files":[{"filename":"a.js"}]}`))
	assert.Equal(t, StatusModified, files[0].Status)
}

func TestDecodeBatch_Invalid(t *testing.T) {
	for _, input := range []string{"", "   ", "{not json", `[{"filename": 3}]`} {
		_, err := DecodeBatch(strings.NewReader(input))
		var verr *ValidationError
		assert.True(t, errors.As(err, &verr), "input %q: %v", input, err)
	}
}

const multiFileDiff = `diff --git a/src/app.js b/src/app.js
index 83db48f..bf269f4 100644
--- a/src/app.js
+++ b/src/app.js
@@ -1,3 +1,4 @@
 const a = 1;
-const b = 2;
+const password = "hunter2hunter2";
+eval(input);
 module.exports = a;
diff --git a/old.js b/old.js
deleted file mode 100644
index 83db48f..0000000
--- a/old.js
+++ /dev/null
@@ -1,1 +0,0 @@
-gone();
diff --git a/new.py b/new.py
new file mode 100644
index 0000000..bf269f4
--- /dev/null
+++ b/new.py
@@ -0,0 +1,2 @@
+import os
+print(os.environ)
`

func TestParseUnifiedDiff(t *testing.T) {
	files, err := ParseUnifiedDiff([]byte(multiFileDiff))
	require.NoError(t, err)
	require.Len(t, files, 3)

	app := files[0]
	assert.Equal(t, "src/app.js", app.Filename)
	assert.Equal(t, StatusModified, app.Status)
	assert.Equal(t, 2, app.Additions)
	assert.Equal(t, 1, app.Deletions)
	assert.Equal(t, "const a = 1;\nconst password = \"hunter2hunter2\";\neval(input);\nmodule.exports = a;\n", app.Content)
	assert.True(t, strings.HasPrefix(app.Patch, "@@ -1,3 +1,4 @@"))

	assert.Equal(t, "old.js", files[1].Filename)
	assert.Equal(t, StatusRemoved, files[1].Status)
	assert.Equal(t, 1, files[1].Deletions)

	assert.Equal(t, "new.py", files[2].Filename)
	assert.Equal(t, StatusAdded, files[2].Status)
	assert.Equal(t, 2, files[2].Additions)
}

func TestCountPatchLines(t *testing.T) {
	adds, dels, err := CountPatchLines("@@ -1,2 +1,2 @@\n-a\n+b\n c\n")
	require.NoError(t, err)
	assert.Equal(t, 1, adds)
	assert.Equal(t, 1, dels)

	adds, dels, err = CountPatchLines("line one\nline two\n")
	require.NoError(t, err)
	assert.Equal(t, 2, adds)
	assert.Equal(t, 0, dels)
}

func TestReadFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.js")
	empty := filepath.Join(dir, "empty.js")
	require.NoError(t, os.WriteFile(a, []byte("one\ntwo\n"), 0644))
	require.NoError(t, os.WriteFile(empty, nil, 0644))

	files, err := ReadFiles([]string{a, empty})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, StatusAdded, files[0].Status)
	assert.Equal(t, 2, files[0].Additions)
	assert.Equal(t, "one\ntwo\n", files[0].Text())
	assert.Equal(t, 0, files[1].Additions)

	_, err = ReadFiles([]string{filepath.Join(dir, "missing.js")})
	assert.Error(t, err)
}

func TestFileChangeText(t *testing.T) {
	assert.Equal(t, "full", FileChange{Content: "full", Patch: "patch"}.Text())
	assert.Equal(t, "patch", FileChange{Patch: "patch"}.Text())
	assert.True(t, FileChange{Status: StatusRemoved}.Removed())
}
