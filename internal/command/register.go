package command

import (
	"fmt"

	"server-warden/pkg/cmd"
)

// Builtins returns every built-in command.
func Builtins() []DiscordCommand {
	return []DiscordCommand{
		HelpCommand{},
		PingCommand{},
		AboutCommand{},
		NewsCommand{},
		ConfigCommand{},
		LimitsCommand{},
		SetupCommand{},
		ModLogCommand{},
		NamesCommand{},
		AvatarsCommand{},
		SnipeCommand{},
		ChangelogCommand{},
		ReloadCommand{},
		SessionsCommand{},
	}
}

// Register adds the built-in commands to reg behind the middleware stack.
func Register(reg *cmd.Registry) error {
	stack := cmd.Chain(Middlewares()...)
	for _, c := range Builtins() {
		if err := reg.Register(stack(c)); err != nil {
			return fmt.Errorf("register %s: %w", c.Name(), err)
		}
	}
	return nil
}
