package shell

import (
	"context"
	"strings"

	"github.com/abiosoft/ishell/v2"
	"github.com/chzyer/readline"

	"chatdeck/internal/logger"
)

// Prompt is the shell prompt.
const Prompt = "chatdeck> "

// commandSpec describes one shell command. run receives the raw argument text.
type commandSpec struct {
	name     string
	help     string
	usage    string
	takesIDs bool
	run      func(c *ishell.Context, args string) error
}

func (a *App) commands(ctx context.Context) []commandSpec {
	return []commandSpec{
		{name: "new", help: "start a new chat", run: func(c *ishell.Context, _ string) error {
			return a.NewChat(writerFor(c))
		}},
		{name: "history", help: "list chats grouped by age", run: func(c *ishell.Context, _ string) error {
			a.History(writerFor(c))
			return nil
		}},
		{name: "select", help: "switch to a chat", usage: "select <id|#n>", takesIDs: true, run: func(c *ishell.Context, args string) error {
			return a.Select(writerFor(c), args)
		}},
		{name: "delete", help: "delete a chat after confirmation", usage: "delete <id|#n>", takesIDs: true, run: func(c *ishell.Context, args string) error {
			a.SetReadLine(c.ReadLine)
			return a.Delete(writerFor(c), args)
		}},
		{name: "show", help: "print the active chat and settings", run: func(c *ishell.Context, _ string) error {
			a.Show(writerFor(c))
			return nil
		}},
		{name: "key", help: "save the Cohere API key", usage: "key <value>", run: func(c *ishell.Context, args string) error {
			return a.SaveKey(writerFor(c), args)
		}},
		{name: "persona", help: "set the assistant's name and prompt", usage: "persona <name> <prompt...>", run: func(c *ishell.Context, args string) error {
			name, prompt, _ := strings.Cut(args, " ")
			return a.SavePersona(writerFor(c), name, prompt)
		}},
		{name: "export", help: "write the active chat as JSON", usage: "export <path>", run: func(c *ishell.Context, args string) error {
			return a.Export(writerFor(c), args)
		}},
		{name: "copy", help: "copy the last reply to the clipboard", run: func(c *ishell.Context, _ string) error {
			return a.Copy(writerFor(c))
		}},
		{name: "send", help: "send a message (plain input does the same)", usage: "send <message>", run: func(c *ishell.Context, args string) error {
			return a.Send(ctx, writerFor(c), args)
		}},
	}
}

// Register adds every chat command to sh and routes other input to Send.
func (a *App) Register(ctx context.Context, sh *ishell.Shell) {
	specs := a.commands(ctx)
	for _, spec := range specs {
		spec := spec
		help := spec.help
		if spec.usage != "" {
			help = spec.usage + " - " + spec.help
		}

		cmd := &ishell.Cmd{
			Name: spec.name,
			Help: help,
			Func: func(c *ishell.Context) {
				a.report(c, spec.name, spec.run(c, strings.Join(c.RawArgs[1:], " ")))
			},
		}
		if spec.takesIDs {
			cmd.Completer = func([]string) []string { return a.SessionIDs() }
		}
		sh.AddCmd(cmd)
	}

	sh.NotFound(func(c *ishell.Context) {
		a.report(c, "send", a.Send(ctx, writerFor(c), strings.Join(c.RawArgs, " ")))
	})
	sh.CustomCompleter(a.Completer(specs))
}

// Completer completes command names and session ids.
func (a *App) Completer(specs []commandSpec) *readline.PrefixCompleter {
	ids := func(string) []string { return a.SessionIDs() }

	items := make([]readline.PrefixCompleterInterface, 0, len(specs)+2)
	for _, spec := range specs {
		if spec.takesIDs {
			items = append(items, readline.PcItem(spec.name, readline.PcItemDynamic(ids)))
			continue
		}
		items = append(items, readline.PcItem(spec.name))
	}
	items = append(items, readline.PcItem("help"), readline.PcItem("exit"))
	return readline.NewPrefixCompleter(items...)
}

func (a *App) report(c *ishell.Context, command string, err error) {
	if err == nil {
		return
	}
	logger.Debug("Command failed", "command", command, "error", err)
	c.Println(a.theme.Error.Render("Error: " + err.Error()))
}
