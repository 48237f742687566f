// internal/core/errors.go
package core

import (
	"context"
	"errors"
	"net"
)

var (
	ErrHostUnreachable       = errors.New("host unreachable")
	ErrNotACamera            = errors.New("no camera protocol signature found")
	ErrAuthRequired          = errors.New("camera requires authentication")
	ErrAuthRejected          = errors.New("camera rejected the supplied credentials")
	ErrCaptureStrategyFailed = errors.New("capture strategy failed")
	ErrCaptureExhausted      = errors.New("all capture strategies failed")
	ErrAnalysisInProgress    = errors.New("analysis already in progress for this lesson")
	ErrAnalysisTooFrequent   = errors.New("analysis requested too soon after the previous one")
	ErrWatchdogCleanup       = errors.New("analysis lock released by watchdog")
	ErrInvalidSubnet         = errors.New("subnet prefix must have the form a.b.c")
)

// ErrorKind é o código estável que vai pro JSON / MQTT.
type ErrorKind string

const (
	KindHostUnreachable       ErrorKind = "host_unreachable"
	KindNotACamera            ErrorKind = "not_a_camera"
	KindAuthRequired          ErrorKind = "auth_required"
	KindCaptureStrategyFailed ErrorKind = "capture_strategy_failed"
	KindCaptureExhausted      ErrorKind = "capture_exhausted"
	KindAnalysisInProgress    ErrorKind = "ANALYSIS_IN_PROGRESS"
	KindAnalysisTooFrequent   ErrorKind = "ANALYSIS_TOO_FREQUENT"
	KindWatchdogCleanup       ErrorKind = "watchdog_forced_cleanup"
	KindInternal              ErrorKind = "internal"
)

// KindOf traduz um erro para o ErrorKind mais específico que ele carrega.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCaptureExhausted):
		return KindCaptureExhausted
	case errors.Is(err, ErrAnalysisInProgress):
		return KindAnalysisInProgress
	case errors.Is(err, ErrAnalysisTooFrequent):
		return KindAnalysisTooFrequent
	case errors.Is(err, ErrWatchdogCleanup):
		return KindWatchdogCleanup
	case errors.Is(err, ErrAuthRequired), errors.Is(err, ErrAuthRejected):
		return KindAuthRequired
	case errors.Is(err, ErrNotACamera):
		return KindNotACamera
	case errors.Is(err, ErrHostUnreachable):
		return KindHostUnreachable
	case errors.Is(err, ErrCaptureStrategyFailed):
		return KindCaptureStrategyFailed
	}
	return KindInternal
}

// IsTimeout diz se o erro é só um estouro de prazo (contexto ou rede).
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
