package dom

import (
	"context"
	"errors"
	"fmt"

	"github.com/chromedp/chromedp"
)

// ErrDetached means a handle no longer resolves to an element.
var ErrDetached = errors.New("element is no longer attached")

// Handle addresses one tagged element for the rest of the current call. The
// tag is cleared by ClearMarks, after which the handle is stale.
type Handle struct {
	Selector string
}

func (h Handle) String() string { return h.Selector }

func markedHandles(attr string, n int) []Handle {
	handles := make([]Handle, 0, n)
	for i := 0; i < n; i++ {
		handles = append(handles, Handle{Selector: fmt.Sprintf(`[%s="%d"]`, attr, i)})
	}
	return handles
}

// FindByText tags the innermost elements whose visible text contains needle,
// case-insensitively, widened to their nearest interactive ancestor. At most
// limit handles are returned, in document order.
func FindByText(ctx context.Context, needle string, limit int) ([]Handle, error) {
	var n int
	if err := chromedp.Run(ctx, chromedp.Evaluate(findByTextScript(needle, limit), &n)); err != nil {
		return nil, fmt.Errorf("text search for %q failed: %w", needle, err)
	}
	return markedHandles(TextMarkAttr, n), nil
}

// FindAll tags up to limit elements matching a CSS selector, in document order.
func FindAll(ctx context.Context, selector string, limit int) ([]Handle, error) {
	var n int
	if err := chromedp.Run(ctx, chromedp.Evaluate(findAllScript(selector, limit), &n)); err != nil {
		return nil, fmt.Errorf("querying %q failed: %w", selector, err)
	}
	return markedHandles(ScanMarkAttr, n), nil
}

// Extract reads the metadata of the element behind h. It reports false for
// visible when the element has no box or is hidden by style.
func Extract(ctx context.Context, h Handle) (Metadata, bool, error) {
	var raw *RawElement
	if err := chromedp.Run(ctx, chromedp.Evaluate(extractScript(h.Selector), &raw)); err != nil {
		return Metadata{}, false, fmt.Errorf("extracting %s failed: %w", h, err)
	}
	if raw == nil {
		return Metadata{}, false, fmt.Errorf("%w: %s", ErrDetached, h)
	}
	return NewMetadata(*raw), raw.Visible, nil
}

// ClearMarks removes every tag left by FindByText and FindAll.
func ClearMarks(ctx context.Context) error {
	var ok bool
	return chromedp.Run(ctx, chromedp.Evaluate(clearMarksScript(), &ok))
}

// Fill replaces the value of an input, textarea or contenteditable element and
// fires input and change events.
func Fill(ctx context.Context, h Handle, value string) error {
	var ok bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(fillScript(h.Selector, value), &ok)); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	return nil
}

// SelectOption picks the option of a select element whose value, label or
// text equals value.
func SelectOption(ctx context.Context, h Handle, value string) error {
	var picked string
	if err := chromedp.Run(ctx, chromedp.Evaluate(selectScript(h.Selector, value), &picked)); err != nil {
		return fmt.Errorf("select failed: %w", err)
	}
	return nil
}
