package worker

import (
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestTransportErrorClassifierShouldRetryPoll(t *testing.T) {
	c := NewTransportErrorClassifier(zap.NewNop())

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout retries", errors.New("context deadline exceeded"), true},
		{"malformed response retries", errors.New("invalid character '}' looking for beginning of value"), true},
		{"process exited does not retry", errors.New("read |0: broken pipe"), false},
		{"unclassified other does not retry", errors.New("something unexpected"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.ShouldRetryPoll(tt.err); got != tt.want {
				t.Errorf("ShouldRetryPoll(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
