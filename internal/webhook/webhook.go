package webhook

import "context"

// Sender uploads an exported archive. Implementations treat an unset
// destination as a no-op.
type Sender interface {
	SendArchive(ctx context.Context, filename string, body []byte) error
}
