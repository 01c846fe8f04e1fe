// Package fault classifies pipeline errors into the closed ErrorCode
// taxonomy used for retry decisions, metrics labels, and outcome events.
package fault

import (
	"context"
	"errors"
	"strings"

	"github.com/swifty/pixpro-worker/internal/domain"
)

// Verdict is the classifier's output: a stable error code plus whether the
// fault is worth a scheduled republish.
type Verdict struct {
	Code      domain.ErrorCode
	Retryable bool
}

// Classify maps a stage error and the phase it occurred in to a Verdict.
// Rules are evaluated in the fixed order below; the first match wins, so
// classifying the same error twice always yields the same Verdict.
//
//  1. An error wrapping context.DeadlineExceeded is always terminal
//     PROCESSING_TIMEOUT, regardless of which stage was running. (The
//     executor's own pipeline.ErrTimeout does not wrap it; the consumer maps
//     that error to PROCESSING_TIMEOUT before calling Classify.)
//  2. A bare network marker (connection refused, timed-out dial) is
//     retryable but carries no phase-specific code.
//  3. A rate-limit marker is retryable and carries RATE_LIMIT_ERROR.
//  4. A phase-specific transient marker (GEMINI_TIMEOUT, CLOUDINARY_TIMEOUT)
//     is retryable and carries that phase's error code.
//  5. Everything else is terminal; the code is still heuristically mapped to
//     the phase's specific error code when the phase is known. Otherwise it
//     is TIMEOUT_ERROR when the message mentions a timeout or deadline, and
//     UNKNOWN_ERROR in all other cases.
func Classify(phase string, err error) Verdict {
	if err == nil {
		return Verdict{Code: domain.ErrCodeUnknownError, Retryable: false}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Verdict{Code: domain.ErrCodeProcessingTimeout, Retryable: false}
	}

	s := strings.ToLower(err.Error())

	if strings.Contains(s, "econnrefused") || strings.Contains(s, "etimedout") ||
		strings.Contains(s, "connection refused") {
		return Verdict{Code: domain.ErrCodeTimeoutError, Retryable: true}
	}

	if strings.Contains(s, "rate_limit_exceeded") || strings.Contains(s, "resource_exhausted") ||
		strings.Contains(s, "429") || strings.Contains(s, "rate limit") {
		return Verdict{Code: domain.ErrCodeRateLimitError, Retryable: true}
	}

	if strings.Contains(s, "gemini_timeout") {
		return Verdict{Code: domain.ErrCodeGeminiAPIError, Retryable: true}
	}
	if strings.Contains(s, "cloudinary_timeout") {
		return Verdict{Code: domain.ErrCodeCloudinaryError, Retryable: true}
	}

	return Verdict{Code: phaseCode(phase, s), Retryable: false}
}

// phaseCode provides the heuristic, non-retryable code mapping named in rule
// 5: a phase-specific code when the phase is known; otherwise TIMEOUT_ERROR
// for timeout/deadline text and UNKNOWN_ERROR for anything else.
func phaseCode(phase, lowered string) domain.ErrorCode {
	switch phase {
	case domain.PhaseFetch:
		return domain.ErrCodeImageDownloadError
	case domain.PhaseTransform:
		return domain.ErrCodeGeminiAPIError
	case domain.PhaseStore:
		return domain.ErrCodeCloudinaryError
	default:
		if strings.Contains(lowered, "timeout") || strings.Contains(lowered, "deadline exceeded") {
			return domain.ErrCodeTimeoutError
		}
		return domain.ErrCodeUnknownError
	}
}
