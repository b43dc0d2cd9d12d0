package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/staffimport/internal/core"
)

const testEntity = "6f1c9a52-3a3b-4a8e-9c53-1d2f0e7b8a11"

const testSeed = `{"entities":[{
  "id": "6f1c9a52-3a3b-4a8e-9c53-1d2f0e7b8a11",
  "name": "Acme",
  "departments": ["IT"],
  "users": [{"lastName": "Петров", "firstName": "Иван", "email": "petrov@acme.test"}]
}]}`

const testCSV = "Фамилия,Имя,Отчество,Дата рождения,Email,Телефон,Отдел\n" +
	"Сидоров,Пётр,,,sidorov@acme.test,,IT\n" +
	"Петров,Иван,,,,,\n"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "none.env")))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// memoryEnv points the config at a seeded in-memory store and returns the
// path of a CSV upload.
func memoryEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	seed := filepath.Join(dir, "seed.json")
	require.NoError(t, os.WriteFile(seed, []byte(testSeed), 0o600))
	upload := filepath.Join(dir, "staff.csv")
	require.NoError(t, os.WriteFile(upload, []byte(testCSV), 0o600))

	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("STORAGE_SEED_FILE", seed)
	t.Setenv("SESSION_BACKEND", "memory")
	t.Setenv("RATE_LIMIT_STORAGE", "memory")
	t.Setenv("LOG_LEVEL", "error")
	return upload
}

func TestTranslit(t *testing.T) {
	out, err := execute(t, "translit", "Иванов")
	require.NoError(t, err)
	assert.Equal(t, "Ivanov\n", out)

	out, err = execute(t, "translit", "-r", "Sergey")
	require.NoError(t, err)
	assert.Equal(t, "Сергей\n", out)

	_, err = execute(t, "translit")
	assert.Error(t, err)
}

func TestTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.xlsx")
	_, err := execute(t, "template", "-o", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("PK")))

	out, err := execute(t, "template", "-o", "-")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix([]byte(out), []byte("PK")))
}

func TestRun_PreviewText(t *testing.T) {
	upload := memoryEnv(t)

	out, err := execute(t, "run", upload, "--entity", testEntity)
	require.NoError(t, err)
	assert.Contains(t, out, "ROW")
	assert.Contains(t, out, "duplicate")
	assert.Contains(t, out, "Сидоров")
	assert.Contains(t, out, "2 rows previewed, 1 failed")
}

func TestRun_ApplyJSON(t *testing.T) {
	upload := memoryEnv(t)

	out, err := execute(t, "run", upload, "--entity", testEntity, "--apply", "--rows", "0", "--format", "json")
	require.NoError(t, err)

	var res core.BatchResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.RecordResults, 1)
	assert.Zero(t, res.FailedNumber)
	require.NotNil(t, res.RecordResults[0].CreatedUser)
	assert.Equal(t, "staff.csv", res.FileName)
}

func TestRun_Errors(t *testing.T) {
	upload := memoryEnv(t)

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"strict with failed rows", []string{"run", upload, "--entity", testEntity, "--strict"}, exitFailedRows},
		{"bad entity flag", []string{"run", upload, "--entity", "acme"}, exitUsage},
		{"bad format", []string{"run", upload, "--entity", testEntity, "--format", "xml"}, exitUsage},
		{"missing file", []string{"run", filepath.Join(t.TempDir(), "none.csv"), "--entity", testEntity}, exitUsage},
		{"unknown entity", []string{"run", upload, "--entity", "00000000-0000-0000-0000-000000000001"}, exitDB},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.code, exitCode(err))
		})
	}
}

func TestPostgresCommandsNeedPostgres(t *testing.T) {
	memoryEnv(t)

	_, err := execute(t, "migrate")
	require.Error(t, err)
	assert.Equal(t, exitUsage, exitCode(err))

	_, err = execute(t, "entity", "create", "--name", "Globex")
	require.Error(t, err)
	assert.Equal(t, exitUsage, exitCode(err))

	_, err = execute(t, "entity", "create", "--name", "Globex", "--contract-type", "partner")
	require.Error(t, err)
	assert.ErrorContains(t, err, "contract-type")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, 1, exitCode(assert.AnError))
	assert.Equal(t, exitDB, exitCode(withCode(exitDB, assert.AnError)))
	assert.Nil(t, withCode(exitDB, nil))
}
