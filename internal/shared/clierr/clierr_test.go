package clierr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{
			name: "missing platform release",
			err:  errors.New("missing platform release PTSolnsAVR:avr@1.0.0 referenced by board PTSolnsAVR:avr:uno"),
			want: OutcomeEmpty,
		},
		{
			name: "platform not installed",
			err:  status.Error(codes.FailedPrecondition, "platform arduino:avr is not installed"),
			want: OutcomeEmpty,
		},
		{
			name: "unknown package",
			err:  status.Error(codes.NotFound, "unknown package PTSolnsAVR"),
			want: OutcomeEmpty,
		},
		{
			name: "platform already installed",
			err:  status.Error(codes.AlreadyExists, "Platform arduino:avr@1.8.6 already installed"),
			want: OutcomeAlreadyInstalled,
		},
		{
			name: "library already installed",
			err:  errors.New("Library Arduino_BuiltIn@1.0.0 is already installed"),
			want: OutcomeAlreadyInstalled,
		},
		{
			name: "absent response text",
			err:  errors.New("Cannot read properties of undefined (reading 'getPlatform')"),
			want: OutcomeBenign,
		},
		{
			name: "nil response sentinel",
			err:  fmt.Errorf("install: %w", ErrNilResponse),
			want: OutcomeBenign,
		},
		{
			name: "generic failure",
			err:  status.Error(codes.Unavailable, "connection refused"),
			want: OutcomeFailure,
		},
		{
			name: "missing platform release without board",
			err:  errors.New("missing platform release"),
			want: OutcomeFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassifyNil(t *testing.T) {
	assert.Equal(t, OutcomeFailure, Classify(nil))
	assert.False(t, IsEmpty(nil))
	assert.False(t, IsBenign(nil))
}

func TestAlreadyInstalled(t *testing.T) {
	err := status.Error(codes.AlreadyExists, "Platform arduino:avr@1.8.6 already installed")

	assert.True(t, AlreadyInstalled(err, "arduino:avr", "1.8.6"))
	assert.False(t, AlreadyInstalled(err, "arduino:avr", "1.8.5"))
	assert.False(t, AlreadyInstalled(err, "PTSolnsAVR:avr", "1.8.6"))
	assert.False(t, AlreadyInstalled(nil, "arduino:avr", "1.8.6"))

	lib := errors.New("Library Arduino_BuiltIn is already installed")
	assert.True(t, AlreadyInstalled(lib, "Arduino_BuiltIn", "1.0.0"))
}

func TestMessageStripsStatusEnvelope(t *testing.T) {
	err := status.Error(codes.Internal, "dependency Servo not found")

	assert.Contains(t, err.Error(), "rpc error")
	assert.Equal(t, "dependency Servo not found", Message(err))
	assert.Equal(t, "dependency Servo not found", Unwrap(err).Error())
	assert.Equal(t, "plain", Message(errors.New("plain")))
	assert.Nil(t, Unwrap(nil))
}

func TestRulesAreNamed(t *testing.T) {
	seen := make(map[string]bool)
	for _, rule := range Rules {
		assert.NotEmpty(t, rule.Name)
		assert.False(t, seen[rule.Name], "duplicate rule %s", rule.Name)
		seen[rule.Name] = true
	}
}
