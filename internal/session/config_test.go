package session_test

import (
	"testing"
	"time"

	"github.com/srg/pulsim/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestOptions_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		expected session.Options
		wantErr  bool
	}{
		{
			name: "duration string",
			yaml: "local_name: Gym Bike\nauto_stop: 10m\nevent_buffer: 8\n",
			expected: session.Options{
				LocalName:   "Gym Bike",
				AutoStop:    10 * time.Minute,
				EventBuffer: 8,
			},
		},
		{
			name: "nanosecond integer",
			yaml: "auto_stop: 1000000000\n",
			expected: session.Options{
				AutoStop: time.Second,
			},
		},
		{
			name:     "auto_stop omitted",
			yaml:     "local_name: Pulsim HR\n",
			expected: session.Options{LocalName: "Pulsim HR"},
		},
		{
			name:    "invalid duration",
			yaml:    "auto_stop: tomorrow\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts session.Options
			err := yaml.Unmarshal([]byte(tt.yaml), &opts)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, opts)
		})
	}
}
