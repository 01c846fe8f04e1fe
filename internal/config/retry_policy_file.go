package config

import (
	"fmt"
	"os"
	"time"

	"github.com/swifty/pixpro-worker/internal/domain"
	"gopkg.in/yaml.v3"
)

// retryPolicyFile is the on-disk shape of an optional retry-policy overlay,
// letting operators tune the delay ladder without a redeploy.
type retryPolicyFile struct {
	MaxRetries             int   `yaml:"maxRetries"`
	DelaysMS               []int `yaml:"delaysMs"`
	ProcessingDeadlineMS   int   `yaml:"processingDeadlineMs"`
	TransformInnerRetryCap int   `yaml:"transformInnerRetryCap"`
	FallbackDelayMS        int   `yaml:"fallbackDelayMs"`
}

// RetryPolicy builds the process-wide domain.RetryPolicy from Config,
// overlaying a YAML file at c.RetryPolicyFile when one is configured.
func (c Config) RetryPolicy() (domain.RetryPolicy, error) {
	rp := domain.RetryPolicy{
		MaxRetries: c.MaxRetries,
		Delays: []time.Duration{
			time.Duration(c.RetryDelay1MS) * time.Millisecond,
			time.Duration(c.RetryDelay2MS) * time.Millisecond,
			time.Duration(c.RetryDelay3MS) * time.Millisecond,
		},
		ProcessingDeadline:     c.ProcessingTimeout(),
		TransformInnerRetryCap: c.TransformInnerRetryCap,
		FallbackDelay:          time.Duration(c.FallbackDelayMS) * time.Millisecond,
	}

	if c.RetryPolicyFile == "" {
		return rp, nil
	}

	raw, err := os.ReadFile(c.RetryPolicyFile)
	if err != nil {
		return domain.RetryPolicy{}, fmt.Errorf("op=config.RetryPolicy: read overlay: %w", err)
	}
	var overlay retryPolicyFile
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return domain.RetryPolicy{}, fmt.Errorf("op=config.RetryPolicy: parse overlay: %w", err)
	}

	if overlay.MaxRetries > 0 {
		rp.MaxRetries = overlay.MaxRetries
	}
	if len(overlay.DelaysMS) > 0 {
		delays := make([]time.Duration, len(overlay.DelaysMS))
		for i, ms := range overlay.DelaysMS {
			delays[i] = time.Duration(ms) * time.Millisecond
		}
		rp.Delays = delays
	}
	if overlay.ProcessingDeadlineMS > 0 {
		rp.ProcessingDeadline = time.Duration(overlay.ProcessingDeadlineMS) * time.Millisecond
	}
	if overlay.TransformInnerRetryCap > 0 {
		rp.TransformInnerRetryCap = overlay.TransformInnerRetryCap
	}
	if overlay.FallbackDelayMS > 0 {
		rp.FallbackDelay = time.Duration(overlay.FallbackDelayMS) * time.Millisecond
	}

	return rp, nil
}
