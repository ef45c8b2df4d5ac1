package shell

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/abiosoft/ishell/v2"

	"chatdeck/internal/logger"
	"chatdeck/internal/version"
)

// HistoryFileName is the readline history file inside the data directory.
const HistoryFileName = "history"

// contextWriter adapts an ishell context to io.Writer.
type contextWriter struct {
	c *ishell.Context
}

func (w contextWriter) Write(p []byte) (int, error) {
	w.c.Print(string(p))
	return len(p), nil
}

func writerFor(c *ishell.Context) contextWriter {
	return contextWriter{c: c}
}

// Run starts the interactive shell and blocks until the user exits.
// ctx is canceled when the shell stops so pending sends end.
func Run(ctx context.Context, app *App, dataDir string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sh := ishell.New()
	sh.SetPrompt(Prompt)
	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			logger.Warn("Cannot create data directory, history disabled", "dir", dataDir, "error", err)
		} else {
			sh.SetHistoryPath(filepath.Join(dataDir, HistoryFileName))
		}
	}

	app.Register(ctx, sh)
	sh.Interrupt(func(c *ishell.Context, count int, _ string) {
		if count >= 2 {
			c.Println("Bye.")
			cancel()
			sh.Stop()
			return
		}
		c.Println("Press Ctrl-C again or type exit to quit.")
	})

	sh.Println(version.GetFormattedVersion())
	sh.Println("Type a message to chat, or 'help' for commands.")
	sh.Println("")
	app.History(os.Stdout)

	sh.Run()
	sh.Close()

	if err := app.store.Flush(); err != nil {
		return fmt.Errorf("failed to save chats on exit: %w", err)
	}
	return nil
}
