package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithOutput(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		format    string
		wantLevel logrus.Level
		wantJSON  bool
	}{
		{"JSON debug", "debug", "json", logrus.DebugLevel, true},
		{"Text warn", "warn", "TEXT", logrus.WarnLevel, false},
		{"Unknown level", "loud", "", logrus.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWithOutput(tt.level, tt.format, &buf)

			assert.Equal(t, tt.wantLevel, logger.GetLevel())

			logger.WithField("document_id", "doc-1").Warn("placeholder extraction")
			var entry map[string]any
			err := json.Unmarshal(buf.Bytes(), &entry)
			if tt.wantJSON {
				require.NoError(t, err)
				assert.Equal(t, "doc-1", entry["document_id"])
			} else {
				assert.Error(t, err)
				assert.Contains(t, buf.String(), "document_id=doc-1")
			}
		})
	}
}

func TestOutput(t *testing.T) {
	assert.Equal(t, os.Stdout, Output("stdout"))
	assert.Equal(t, os.Stderr, Output("stderr"))
	assert.Equal(t, os.Stderr, Output(""))
}
