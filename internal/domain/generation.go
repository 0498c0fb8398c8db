package domain

import "context"

// Generator is the text-generation contract. Implementations wrap a chat or
// completion API; the call blocks until the model responds or ctx is done.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
