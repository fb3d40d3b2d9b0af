package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/protect-bridge/guest"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		policy  string
		want    *guest.Module
		wantErr bool
	}{
		{policy: "allow", want: guest.Allow()},
		{policy: "deny", want: guest.Deny()},
		{policy: " nonneg ", want: guest.NonNegative()},
		{policy: "trap", want: guest.Trap()},
		{policy: "const:7", want: guest.Constant(7)},
		{policy: "raise", want: guest.Raise(1, 1)},
		{policy: "raise:9", want: guest.Raise(9, 1)},
		{policy: "list:3, 5,", want: guest.AllowList(3, 5)},
		{policy: "const:x", wantErr: true},
		{policy: "list:3,y", wantErr: true},
		{policy: "sometimes", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			m, err := parsePolicy(tt.policy)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Encode(), m.Encode())
		})
	}
}

func TestProtectCommand(t *testing.T) {
	out, err := run(t, "protect", "--policy", "list:3,5", "--fd", "3", "--fd", "4", "--fd", "-1")
	require.NoError(t, err)
	assert.Contains(t, out, "fd 3: protected")
	assert.Contains(t, out, "fd 4: denied")
	assert.Contains(t, out, "fd -1: invalid_input")
}

func TestProtectCommand_Trap(t *testing.T) {
	out, err := run(t, "protect", "--policy", "trap", "--fd", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "fd 3: callback_fault")
}

func TestProtectCommand_RequiresFD(t *testing.T) {
	_, err := run(t, "protect")
	assert.ErrorContains(t, err, "--fd")
}

func TestEmitThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonneg.wasm")

	_, err := run(t, "emit", "--policy", "nonneg", "-o", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, guest.NonNegative().Encode(), data)

	out, err := run(t, "protect", "--module", path, "--fd", "8", "--fd", "-8")
	require.NoError(t, err)
	assert.Contains(t, out, "fd 8: protected")
	assert.Contains(t, out, "fd -8: invalid_input")
}

func TestProtectCommand_BadModule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.wasm")
	require.NoError(t, os.WriteFile(path, []byte("not wasm"), 0o644))

	_, err := run(t, "protect", "--module", path, "--fd", "1")
	assert.Error(t, err)
}

func TestStressCommand(t *testing.T) {
	out, err := run(t, "stress", "--workers", "4", "--calls", "50")
	require.NoError(t, err)
	assert.Contains(t, out, "calls: 200 in")
	assert.Contains(t, out, "swaps:")
}

func TestStressCommand_NoChurn(t *testing.T) {
	out, err := run(t, "stress", "--policy", "deny", "--workers", "2", "--calls", "10", "--churn=false")
	require.NoError(t, err)
	assert.Contains(t, out, "calls: 20 in")
	assert.Contains(t, out, "swaps: 0")
	assert.Contains(t, out, "denied:")
	assert.NotContains(t, out, "protected:")
}

func TestStressCommand_RejectsZeroWorkers(t *testing.T) {
	_, err := run(t, "stress", "--workers", "0")
	assert.Error(t, err)
}

func TestConfigView(t *testing.T) {
	out, err := run(t, "config", "view")
	require.NoError(t, err)
	assert.Contains(t, out, "max_attempts: 3")
	assert.Contains(t, out, "method: bypass")
}

func TestConfigView_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "protect.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retry:\n  max_attempts: 5\n"), 0o644))

	out, err := run(t, "--config", path, "config", "view")
	require.NoError(t, err)
	assert.Contains(t, out, "max_attempts: 5")
}

func TestConfigView_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "protect.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retry:\n  max_attempts: 0\n"), 0o644))

	_, err := run(t, "--config", path, "config", "view")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "protectctl")
}
