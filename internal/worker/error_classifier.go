package worker

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// transportErrorType classifies an RPC transport failure observed
// while polling a sub-task. This is narrower than a generic error
// classifier: it decides only whether the task coordinator's polling
// loop should retry the same progress call on its next tick, never
// whether to retry a generate() call or an inference itself.
type transportErrorType string

const (
	transportTimeout       transportErrorType = "timeout"
	transportProcessExited transportErrorType = "process_exited"
	transportMalformed     transportErrorType = "malformed_response"
	transportOther         transportErrorType = "other"
)

type transportRule struct {
	pattern *regexp.Regexp
	kind    transportErrorType
}

var transportRules = []transportRule{
	{regexp.MustCompile(`(?i)deadline exceeded|timeout`), transportTimeout},
	{regexp.MustCompile(`(?i)process exited|broken pipe|closed pipe|EOF`), transportProcessExited},
	{regexp.MustCompile(`(?i)unmarshal|invalid character|unexpected end of json`), transportMalformed},
}

// TransportErrorClassifier decides whether a polling-loop RPC error is
// worth retrying on the next tick. The task coordinator holds a single
// one, shared by all of its sub-task poll loops.
type TransportErrorClassifier struct {
	logger *zap.Logger
}

func NewTransportErrorClassifier(logger *zap.Logger) *TransportErrorClassifier {
	return &TransportErrorClassifier{logger: logger}
}

func (c *TransportErrorClassifier) classify(err error) transportErrorType {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return transportTimeout
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range transportRules {
		if rule.pattern.MatchString(msg) {
			return rule.kind
		}
	}
	return transportOther
}

// ShouldRetryPoll reports whether the polling loop should try again
// on its next tick after this error. A process_exited classification
// never retries: the worker is gone and the sub-task is failed
// immediately by the coordinator.
func (c *TransportErrorClassifier) ShouldRetryPoll(err error) bool {
	kind := c.classify(err)
	retry := kind == transportTimeout || kind == transportMalformed
	c.logger.Debug("classified rpc transport error",
		zap.String("kind", string(kind)),
		zap.Bool("retry", retry),
		zap.Error(err))
	return retry
}
