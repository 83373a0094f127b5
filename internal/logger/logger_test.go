package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{
			name:    "nil config",
			cfg:     nil,
			wantErr: true,
		},
		{
			name:    "defaults",
			cfg:     &Config{},
			wantErr: false,
		},
		{
			name:    "debug console",
			cfg:     &Config{Level: "debug", Encoding: "console"},
			wantErr: false,
		},
		{
			name:    "invalid level",
			cfg:     &Config{Level: "loud"},
			wantErr: true,
		},
		{
			name:    "file logging without path",
			cfg:     &Config{ToFile: true},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, log)
			log.Sync()
		})
	}
}

func TestNewWithFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indexer.log")

	log, err := New(&Config{Level: "info", ToFile: true, FilePath: path})
	require.NoError(t, err)

	log.Info("started")
	log.Sync()

	assert.FileExists(t, path)
}

func TestWithComponent(t *testing.T) {
	log, err := New(&Config{})
	require.NoError(t, err)

	scoped := WithComponent(log, "scanner")
	assert.NotNil(t, scoped)
}
