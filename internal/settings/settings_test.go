package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "PRMonitor", "config.json")
	s, err := Open(path)
	require.NoError(t, err)

	_, ok := s.Get(KeyRepoSearchFilter)
	assert.False(t, ok)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "nothing is written until the first Set")
}

func TestSetPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "PRMonitor", "config.json")
	s, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, s.SetRepoSearchFilter("  Monitor "))
	require.NoError(t, s.SetRefreshInterval(10*time.Minute))

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, "monitor", reopened.RepoSearchFilter())

	d, ok := reopened.RefreshInterval()
	require.True(t, ok)
	assert.Equal(t, 10*time.Minute, d)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"refresh_time": 600`)
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestEmptyFilterClears(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	require.NoError(t, s.SetRepoSearchFilter("api"))
	require.NoError(t, s.SetRepoSearchFilter(""))
	_, ok := s.Get(KeyRepoSearchFilter)
	assert.False(t, ok)
	assert.Equal(t, "", s.RepoSearchFilter())
}

func TestOpenMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := Open(path)
	assert.Error(t, err)
}

func TestRefreshIntervalIgnoresBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"refresh_time": "soon"}`), 0o600))
	s, err := Open(path)
	require.NoError(t, err)
	_, ok := s.RefreshInterval()
	assert.False(t, ok)

	assert.ErrorIs(t, s.SetRefreshInterval(30*time.Second), ErrInvalidRefreshInterval)
}

func TestParseRefreshMinutes(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{input: "1", want: time.Minute},
		{input: " 15 ", want: 15 * time.Minute},
		{input: "0", wantErr: true},
		{input: "-3", wantErr: true},
		{input: "1.5", wantErr: true},
		{input: "five", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRefreshMinutes(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRefreshInterval)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
