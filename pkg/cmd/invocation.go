// Package cmd provides a transport-agnostic command core: a command is
// something with a name, description, and Run(ctx, invocation). How it is
// registered and dispatched (Discord text commands, the operator CLI) is
// defined by adapters that wrap this.
package cmd

import "context"

// Invocation carries the input any command runner can pass: the parsed
// arguments, the raw argument text and an opaque payload. Adapters set Data
// to their own context (e.g. the Discord message context).
type Invocation struct {
	Name string
	Args []string
	Raw  string
	Data any
}

// Command is the universal contract: identity plus execution. Permissions,
// categories and transport-specific registration stay in adapters.
type Command interface {
	Name() string
	Description() string
	Run(ctx context.Context, inv *Invocation) error
}

// Aliased is implemented by commands reachable under additional names.
type Aliased interface {
	Aliases() []string
}
