// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

package operator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeforge/neurocore/internal/engine/state"
)

func TestReadFileExecuteLoadsContentIntoState(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))

	s := state.New(dir)
	op := ReadFile{Path: "main.go"}

	require.True(t, op.IsApplicable(s, state.Goal{}))
	result := op.Execute(s)

	require.True(t, result.Success)
	require.NotNil(t, result.NewState)
	rec, ok := result.NewState.Files["main.go"]
	require.True(t, ok)
	assert.Equal(t, "package main\n", rec.Content)
	assert.Equal(t, "go", rec.Language)
}

func TestReadFileNotApplicableForDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	op := ReadFile{Path: "sub"}
	assert.False(t, op.IsApplicable(state.New(dir), state.Goal{}))
}

func TestReadFileExecuteMissingFileFails(t *testing.T) {
	dir := t.TempDir()
	op := ReadFile{Path: "missing.go"}

	result := op.Execute(state.New(dir))
	assert.False(t, result.Success)
	assert.Error(t, result.Err)
	assert.Nil(t, result.NewState)
}

func TestListDirectoryExecuteSortsEntriesAndMarksDirs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "zeta"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alpha.go"), []byte(""), 0o644))

	op := ListDirectory{Path: "."}
	s := state.New(dir)
	require.True(t, op.IsApplicable(s, state.Goal{}))

	result := op.Execute(s)
	require.True(t, result.Success)
	assert.Equal(t, "alpha.go\nzeta/", result.NewState.RepoStatus)
}

func TestListDirectoryNotApplicableForFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte(""), 0o644))

	op := ListDirectory{Path: "f.txt"}
	assert.False(t, op.IsApplicable(state.New(dir), state.Goal{}))
}

func TestWriteFileExecuteCreatesParentDirsAndContent(t *testing.T) {
	dir := t.TempDir()
	op := WriteFile{Path: filepath.Join("nested", "out.go"), Content: "package nested\n"}

	s := state.New(dir)
	require.True(t, op.IsApplicable(s, state.Goal{}))

	result := op.Execute(s)
	require.True(t, result.Success)

	data, err := os.ReadFile(filepath.Join(dir, "nested", "out.go"))
	require.NoError(t, err)
	assert.Equal(t, "package nested\n", string(data))

	rec := result.NewState.Files[filepath.Join("nested", "out.go")]
	assert.Equal(t, "package nested\n", rec.Content)
}

func TestWriteFileIsDestructive(t *testing.T) {
	assert.True(t, WriteFile{Path: "a.go"}.IsDestructive())
	assert.False(t, ReadFile{Path: "a.go"}.IsDestructive())
	assert.False(t, ListDirectory{Path: "."}.IsDestructive())
}

func TestWriteFileNotApplicableWithoutPath(t *testing.T) {
	assert.False(t, WriteFile{Path: ""}.IsApplicable(state.New(t.TempDir()), state.Goal{}))
}

func TestRunCodeExecuteCapturesOutputOnSuccess(t *testing.T) {
	dir := t.TempDir()
	op := RunCode{Command: "echo", Args: []string{"hello"}, Timeout: time.Second}

	s := state.New(dir)
	require.True(t, op.IsApplicable(s, state.Goal{}))

	result := op.Execute(s)
	require.True(t, result.Success)
	assert.Contains(t, result.Output, "hello")
	assert.Contains(t, result.NewState.LastCommandOut, "hello")
}

func TestRunCodeExecuteRecordsErrorOnFailure(t *testing.T) {
	dir := t.TempDir()
	op := RunCode{Command: "false", Timeout: time.Second}

	result := op.Execute(state.New(dir))
	assert.False(t, result.Success)
	require.NotNil(t, result.NewState)
	_, hasErr := result.NewState.LastError()
	assert.True(t, hasErr)
}

func TestRunCodeDefaultsTimeoutWhenUnset(t *testing.T) {
	dir := t.TempDir()
	op := RunCode{Command: "echo", Args: []string{"ok"}}

	result := op.Execute(state.New(dir))
	assert.True(t, result.Success)
}

func TestLanguageForPathKnownExtensions(t *testing.T) {
	assert.Equal(t, "go", languageForPath("x.go"))
	assert.Equal(t, "python", languageForPath("x.py"))
	assert.Equal(t, "javascript", languageForPath("x.js"))
	assert.Equal(t, "", languageForPath("x.unknown"))
}
