package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, ""},
		{"checkpoint", New(ErrorTypeCheckpoint, 400, "challenge_required"), ClassFatal},
		{"auth", New(ErrorTypeAuth, 401, "login_required"), ClassFatal},
		{"rate limit", New(ErrorTypeRateLimit, 429, "slow down"), ClassTransient},
		{"server", New(ErrorTypeServerError, 502, "bad gateway"), ClassTransient},
		{"parse", New(ErrorTypeParsing, 200, "bad json"), ClassItem},
		{"not found", New(ErrorTypeNotFound, 404, "gone"), ClassItem},
		{"plain", stderrors.New("boom"), ClassTransient},
		{"wrapped checkpoint", fmt.Errorf("login: %w", New(ErrorTypeCheckpoint, 0, "verify")), ClassFatal},
		{"canceled", context.Canceled, ClassFatal},
		{"deadline", fmt.Errorf("wait: %w", context.DeadlineExceeded), ClassFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassOf(tt.err))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := Wrap(ErrorTypeNetwork, stderrors.New("connection reset"), "request failed").WithTarget("natgeo")
	assert.Equal(t, "network error (code 0): request failed [natgeo]: connection reset", err.Error())
	assert.True(t, stderrors.Is(err, err.Err))
}

func TestIsCheckpoint(t *testing.T) {
	assert.True(t, IsCheckpoint(fmt.Errorf("x: %w", New(ErrorTypeCheckpoint, 0, "c"))))
	assert.False(t, IsCheckpoint(New(ErrorTypeAuth, 401, "a")))
	assert.False(t, IsCheckpoint(stderrors.New("checkpoint_required")))
}

func TestRetryClassOf(t *testing.T) {
	assert.Equal(t, ClassTransient, RetryClassOf(New(ErrorTypeAuth, 0, "still on login page")))
	assert.Equal(t, ClassTransient, RetryClassOf(fmt.Errorf("login: %w", New(ErrorTypeAuth, 401, "login_required"))))
	assert.Equal(t, ClassFatal, RetryClassOf(New(ErrorTypeCheckpoint, 0, "challenge")))
	assert.Equal(t, ClassFatal, RetryClassOf(Wrap(ErrorTypeAuth, context.Canceled, "login aborted")))
	assert.Equal(t, ClassItem, RetryClassOf(New(ErrorTypeParsing, 0, "bad json")))

	// the run still treats a rejected login as fatal
	assert.True(t, IsFatal(New(ErrorTypeAuth, 0, "still on login page")))
}
