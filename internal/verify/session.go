// Package verify drives one record through the remote enrollment form and
// classifies the outcome from the page text that appears after submission.
package verify

import "context"

// Session is one isolated page interaction. Implementations own a private
// form state: concurrent attempts never share a Session.
type Session interface {
	// FillField tries each locator in priority order and reports whether
	// any visible input accepted the value.
	FillField(ctx context.Context, locators []string, value string) bool

	// ClickControl clicks the first visible, clickable locator match.
	ClickControl(ctx context.Context, locators []string) bool

	// FindText reports whether the given text currently appears on the page.
	FindText(ctx context.Context, text string) bool

	// CaptureArtifact writes a screenshot of the result region to path.
	CaptureArtifact(ctx context.Context, path string) error

	// Close releases the session. Safe to call from any exit path.
	Close() error
}

// SessionFactory mints a fresh Session per attempt.
type SessionFactory interface {
	Probe(ctx context.Context) (Session, error)
}
