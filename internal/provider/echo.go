package provider

import (
	"context"
	"time"
)

// Echo is a development invoker that replies with the prompt itself after an
// optional delay. Useful for exercising the fan-out path without provider
// credentials.
type Echo struct {
	Delay time.Duration
}

// Invoke returns the prompt unchanged, honoring ctx during the delay.
func (e Echo) Invoke(ctx context.Context, model, prompt string) (string, error) {
	if e.Delay > 0 {
		timer := time.NewTimer(e.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return prompt, nil
}
