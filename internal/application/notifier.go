package application

import (
	"context"
	"fmt"
	"strings"

	"voice-todo/internal/domain"
)

type Notifier interface {
	Notify(ctx context.Context, message string) error
}

type NoopNotifier struct{}

func (n *NoopNotifier) Notify(_ context.Context, _ string) error {
	return nil
}

func completionMessage(audioName string, result domain.AnalysisResult) string {
	msg := fmt.Sprintf("%s: %d to-dos", audioName, result.Count())
	if line, _, _ := strings.Cut(strings.TrimSpace(result.Highlights), "\n"); line != "" {
		msg += "\n" + line
	}
	return msg
}

func failureMessage(audioName string, f Failure) string {
	return fmt.Sprintf("%s failed (%s): %s", audioName, f.Code, f.Message)
}
