package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMigrator struct {
	version uint
	dirty   bool
	upErr   error
	calls   []string
}

func (f *fakeMigrator) Up() error {
	f.calls = append(f.calls, "up")
	if f.upErr != nil {
		return f.upErr
	}
	f.version = 1
	return nil
}

func (f *fakeMigrator) Down() error {
	f.calls = append(f.calls, "down")
	f.version = 0
	return nil
}

func (f *fakeMigrator) Version() (uint, bool, error) {
	f.calls = append(f.calls, "version")
	return f.version, f.dirty, nil
}

func TestExecute(t *testing.T) {
	tests := []struct {
		cmd       string
		start     uint
		wantCalls []string
		wantOut   string
	}{
		{"up", 0, []string{"up", "version"}, "version=1 dirty=false\n"},
		{"down", 1, []string{"down", "version"}, "version=0 dirty=false\n"},
		{"version", 1, []string{"version"}, "version=1 dirty=false\n"},
	}

	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			m := &fakeMigrator{version: tt.start}
			var out bytes.Buffer

			require.NoError(t, execute(tt.cmd, m, &out))
			assert.Equal(t, tt.wantCalls, m.calls)
			assert.Equal(t, tt.wantOut, out.String())
		})
	}
}

func TestExecute_UpFailure(t *testing.T) {
	m := &fakeMigrator{upErr: errors.New("dirty database version 1")}
	var out bytes.Buffer

	err := execute("up", m, &out)
	assert.ErrorContains(t, err, "dirty database")
	assert.Empty(t, out.String())
}

func TestExecute_UnknownCommand(t *testing.T) {
	m := &fakeMigrator{}
	assert.Error(t, execute("drop", m, &bytes.Buffer{}))
	assert.Empty(t, m.calls)
}

func TestUsageListsCommands(t *testing.T) {
	var out bytes.Buffer
	usage(&out)
	for name := range commands {
		assert.Contains(t, out.String(), name)
	}
}
