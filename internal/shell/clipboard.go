package shell

import "fmt"

// SystemClipboard copies text to the OS clipboard.
func SystemClipboard(text string) error {
	if err := initClipboard(); err != nil {
		return fmt.Errorf("clipboard initialization failed: %w", err)
	}
	if err := writeToClipboard(text); err != nil {
		return fmt.Errorf("failed to write to clipboard: %w", err)
	}
	return nil
}

// ClipboardAvailable reports whether this build can reach a system clipboard.
func ClipboardAvailable() bool {
	return clipboardAvailable
}
