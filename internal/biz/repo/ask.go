package repo

import "context"

// AskRepo answers free-form questions with a chat model
type AskRepo interface {
	Ask(ctx context.Context, question string) (string, error)
}
