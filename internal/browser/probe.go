package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Probe is one isolated page interaction, implementing verify.Session.
// The incognito page is owned by exactly one attempt.
type Probe struct {
	page        *rod.Page
	findTimeout time.Duration
	log         *zap.Logger
}

// find returns the first visible element among the locator candidates,
// each searched under its own short timeout.
func (p *Probe) find(ctx context.Context, locators []string) (*rod.Element, bool) {
	for _, sel := range locators {
		el, err := p.page.Context(ctx).Timeout(p.findTimeout).Element(sel)
		if err != nil {
			continue
		}
		if visible, err := el.Visible(); err != nil || !visible {
			continue
		}
		return el, true
	}
	return nil, false
}

// FillField clears and fills the first visible candidate input.
func (p *Probe) FillField(ctx context.Context, locators []string, value string) bool {
	el, ok := p.find(ctx, locators)
	if !ok {
		return false
	}
	// Select-all first so Input replaces any prefilled value.
	_ = el.SelectAllText()
	if err := el.Input(value); err != nil {
		p.log.Debug("input failed", zap.Error(err))
		return false
	}
	return true
}

// ClickControl clicks the first visible, clickable candidate.
func (p *Probe) ClickControl(ctx context.Context, locators []string) bool {
	el, ok := p.find(ctx, locators)
	if !ok {
		return false
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		p.log.Debug("click failed", zap.Error(err))
		return false
	}
	return true
}

// FindText reports whether text appears anywhere in the rendered page.
// Matching is case-insensitive over the body's inner text.
func (p *Probe) FindText(ctx context.Context, text string) bool {
	res, err := p.page.Context(ctx).Timeout(p.findTimeout).Evaluate(&rod.EvalOptions{
		JS:      `() => (document.body && document.body.innerText || '').toLowerCase()`,
		ByValue: true,
	})
	if err != nil || res == nil {
		return false
	}
	return strings.Contains(res.Value.Str(), strings.ToLower(text))
}

// CaptureArtifact screenshots the viewport to path.
func (p *Probe) CaptureArtifact(ctx context.Context, path string) error {
	data, err := p.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return fmt.Errorf("screenshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("artifact dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

// Close releases the incognito page.
func (p *Probe) Close() error {
	return p.page.Close()
}
