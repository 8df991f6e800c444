package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sddcinfo/provisioning-server/pkg/types"
)

func TestSuperviseReturnsResult(t *testing.T) {
	out, err := Supervise(context.Background(), time.Second, 2*time.Second, "echo", func(ctx context.Context) (string, error) {
		return "hello", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestSupervisePropagatesError(t *testing.T) {
	wantErr := errors.New("command failed")
	_, err := Supervise(context.Background(), time.Second, 2*time.Second, "false", func(ctx context.Context) (string, error) {
		return "", wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestSuperviseInnerTimeout(t *testing.T) {
	// fn honors its context: the inner deadline classifies the failure.
	_, err := Supervise(context.Background(), 50*time.Millisecond, time.Second, "slow", func(ctx context.Context) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(5 * time.Second):
			return "too late", nil
		}
	})
	require.Error(t, err)
	var timeoutErr *types.RemoteTimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, 50*time.Millisecond, timeoutErr.Timeout)
}

func TestSuperviseOuterBoundAbandonsHangingCall(t *testing.T) {
	// fn ignores its context entirely, simulating a primitive whose own
	// timeout has itself hung. The outer bound must still return.
	start := time.Now()
	_, err := Supervise(context.Background(), 50*time.Millisecond, 200*time.Millisecond, "hang", func(ctx context.Context) (string, error) {
		time.Sleep(5 * time.Second)
		return "never seen", nil
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	var timeoutErr *types.RemoteTimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, 200*time.Millisecond, timeoutErr.Timeout)
	assert.Less(t, elapsed, 2*time.Second, "call must be abandoned at the outer bound, not awaited")
}

func TestSuperviseHonorsCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := Supervise(ctx, time.Minute, 2*time.Minute, "interrupted", func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIPMIExecutorBuildsArgs(t *testing.T) {
	var gotName string
	var gotArgs []string

	e := NewIPMIExecutor("10.2.0.11", "admin", "secret")
	e.runCmd = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotName = name
		gotArgs = args
		return []byte("Chassis Power Control: Cycle"), nil
	}

	out, err := e.Run(context.Background(), "power cycle")
	require.NoError(t, err)
	assert.Contains(t, out, "Cycle")
	assert.Equal(t, "ipmitool", gotName)
	assert.Equal(t, []string{"-I", "lanplus", "-H", "10.2.0.11", "-U", "admin", "-P", "secret", "power", "cycle"}, gotArgs)
}

func TestIPMIExecutorWrapsFailure(t *testing.T) {
	e := NewIPMIExecutor("10.2.0.11", "admin", "secret")
	e.runCmd = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("Unable to establish IPMI v2 / RMCP+ session"), errors.New("exit status 1")
	}

	_, err := e.Run(context.Background(), "chassis bootdev pxe")
	require.Error(t, err)
	var cmdErr *types.RemoteCommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Contains(t, cmdErr.Output, "RMCP+")
}
