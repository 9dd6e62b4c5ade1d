package chat

import "context"

// Surface is a chat space the orchestrator can write to. The adviser-facing
// and supervisor-facing surfaces are structurally identical; they differ only
// in credentials and audience.
type Surface interface {
	// SendNew posts content to a space, threading onto threadID when given.
	// It returns the resolved thread and the new message id.
	SendNew(ctx context.Context, spaceID, threadID string, content Content) (thread string, messageID string, err error)

	// Update replaces the content of an existing message in place.
	Update(ctx context.Context, spaceID, messageID string, content Content) error

	// Delete removes a message.
	Delete(ctx context.Context, spaceID, messageID string) error
}
