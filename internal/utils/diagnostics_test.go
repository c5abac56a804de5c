package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnosticSystem_Levels(t *testing.T) {
	tests := []struct {
		name     string
		level    DiagnosticLevel
		expected string
		errors   string
	}{
		{"silent", DiagnosticSilent, "", ""},
		{"errors only", DiagnosticError, "", "[ERROR] broken\n"},
		{"info", DiagnosticInfo, "[WARN] careful\n[INFO] hello\n  - item\n", "[ERROR] broken\n"},
		{"debug", DiagnosticDebug, "[WARN] careful\n[INFO] hello\n  - item\n[DEBUG] details\n", "[ERROR] broken\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, errOut bytes.Buffer
			d := NewDiagnosticSystem(tt.level).WithOutput(&out, &errOut)

			d.Error("broken")
			d.Warn("careful")
			d.Info("hello")
			d.Indent()
			d.List("item")
			d.Unindent()
			d.Unindent()
			d.Debug("details")

			assert.Equal(t, tt.expected, out.String())
			assert.Equal(t, tt.errors, errOut.String())
		})
	}
}

func TestDiagnosticSystem_Phases(t *testing.T) {
	var out bytes.Buffer
	d := NewDiagnosticSystem(DiagnosticInfo).WithOutput(&out, &out)

	d.Header("serving")
	d.PhaseHeader("Routes")
	d.PhaseItem("%d registered", 3)

	assert.Equal(t, "Rewire: serving\nRoutes:\n✓ 3 registered\n", out.String())
}

func TestDiagnosticSystem_Presets(t *testing.T) {
	var out, errOut bytes.Buffer
	quiet := NewQuietDiagnostics().WithOutput(&out, &errOut)
	assert.Equal(t, DiagnosticError, quiet.Level())
	quiet.Info("hidden")
	quiet.Verbose("hidden")
	quiet.Error("shown")
	assert.Empty(t, out.String())
	assert.Equal(t, "[ERROR] shown\n", errOut.String())

	out.Reset()
	verbose := NewVerboseDiagnostics().WithOutput(&out, &out)
	assert.Equal(t, DiagnosticVerbose, verbose.Level())
	verbose.PhaseHeader("Listeners")
	verbose.Indent()
	verbose.Verbose("GET /users")
	verbose.Unindent()
	verbose.Debug("hidden")
	assert.Equal(t, "Listeners:\n  [VERBOSE] GET /users\n", out.String())
}

func TestParseGoMod(t *testing.T) {
	dir := t.TempDir()
	content := "module example.com/app\n\ngo 1.25\n\nreplace example.com/lib => ../lib\n\nreplace example.com/remote => example.com/fork v1.0.0\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte(content), 0o644))
	nested := filepath.Join(dir, "internal", "api")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	goMod, err := FindGoModFile(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "go.mod"), goMod)

	info, err := ParseGoMod(goMod)
	require.NoError(t, err)
	assert.Equal(t, "example.com/app", info.Path)
	assert.Equal(t, dir, info.Dir)
	assert.Equal(t, []string{filepath.Join(filepath.Dir(dir), "lib")}, info.LocalReplaces)

	_, err = ParseGoMod(filepath.Join(dir, "other.txt"))
	assert.Error(t, err)
}
