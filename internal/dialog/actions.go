package dialog

import "context"

// Action is a domain command available to authenticated users.
// Implementations return oauth.ErrTokenRejected (wrapped) when the resource
// server refuses the access token; the dialog then refreshes once and retries.
type Action interface {
	Run(ctx context.Context, accessToken string) (string, error)
}

// ActionFunc adapts a function to Action.
type ActionFunc func(ctx context.Context, accessToken string) (string, error)

// Run calls f.
func (f ActionFunc) Run(ctx context.Context, accessToken string) (string, error) {
	return f(ctx, accessToken)
}

type registeredAction struct {
	info   ActionInfo
	action Action
}
