package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"lowercase passthrough", "aa:bb:cc:dd:ee:ff", "aa:bb:cc:dd:ee:ff", false},
		{"uppercase", "AA:BB:CC:DD:EE:FF", "aa:bb:cc:dd:ee:ff", false},
		{"dash separators", "aa-bb-cc-dd-ee-ff", "aa:bb:cc:dd:ee:ff", false},
		{"surrounding whitespace", " aa:bb:cc:dd:ee:ff\n", "aa:bb:cc:dd:ee:ff", false},
		{"too short", "aa:bb:cc:dd:ee", "", true},
		{"non-hex", "zz:bb:cc:dd:ee:ff", "", true},
		{"no separators", "aabbccddeeff", "", true},
		{"empty", "", "", true},
		{"injection attempt", "aa:bb:cc:dd:ee:ff; rm -rf /", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeKey(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidKey), "expected ErrInvalidKey, got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReprovisionStatusCanTransition(t *testing.T) {
	tests := []struct {
		from, to ReprovisionStatus
		ok       bool
	}{
		{ReprovisionNone, ReprovisionInProgress, true},
		{ReprovisionInProgress, ReprovisionCompleted, true},
		{ReprovisionInProgress, ReprovisionTimeout, true},
		{ReprovisionInProgress, ReprovisionError, true},
		{ReprovisionCompleted, ReprovisionClustered, true},
		{ReprovisionTimeout, ReprovisionInProgress, true},
		{ReprovisionError, ReprovisionInProgress, true},
		{ReprovisionClustered, ReprovisionInProgress, true},

		// Idempotent same-value writes are always allowed.
		{ReprovisionInProgress, ReprovisionInProgress, true},
		{ReprovisionCompleted, ReprovisionCompleted, true},

		// Out-of-order writes are rejected.
		{ReprovisionNone, ReprovisionCompleted, false},
		{ReprovisionNone, ReprovisionClustered, false},
		{ReprovisionCompleted, ReprovisionTimeout, false},
		{ReprovisionTimeout, ReprovisionCompleted, false},
		{ReprovisionTimeout, ReprovisionClustered, false},
		{ReprovisionInProgress, ReprovisionClustered, false},
		{ReprovisionClustered, ReprovisionCompleted, false},
	}

	for _, tt := range tests {
		got := tt.from.CanTransition(tt.to)
		assert.Equal(t, tt.ok, got, "%q -> %q", tt.from, tt.to)
	}
}

func TestValidInstallStatus(t *testing.T) {
	for _, s := range []InstallStatus{StatusNew, StatusInstalling, StatusDone, StatusFailed} {
		assert.True(t, ValidInstallStatus(s), "%q should be valid", s)
	}
	assert.False(t, ValidInstallStatus("PENDING"))
	assert.False(t, ValidInstallStatus(""))
}
