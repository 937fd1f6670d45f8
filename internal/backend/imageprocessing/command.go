package imageprocessing

import (
	"fmt"
	"sort"
)

// Command transforms encoded image bytes into other encoded image bytes
type Command interface {
	Name() string
	Execute(imageData []byte) ([]byte, error)
}

// CommandFactory builds a command from its configuration parameters
type CommandFactory func(params map[string]any) (Command, error)

// CommandConfig names a command and carries its parameters
type CommandConfig struct {
	Name   string
	Params map[string]any
}

var commandFactories = map[string]CommandFactory{
	CompressCommandName: NewCompressCommand,
}

// NewCommand instantiates a known command by name
func NewCommand(name string, params map[string]any) (Command, error) {
	factory, ok := commandFactories[name]
	if !ok {
		return nil, fmt.Errorf("unknown command: %s", name)
	}
	command, err := factory(params)
	if err != nil {
		return nil, fmt.Errorf("invalid parameters for command %s: %w", name, err)
	}
	return command, nil
}

// IsKnownCommand reports whether a command with this name can be created
func IsKnownCommand(name string) bool {
	_, ok := commandFactories[name]
	return ok
}

// KnownCommands returns the sorted names of all creatable commands
func KnownCommands() []string {
	names := make([]string, 0, len(commandFactories))
	for name := range commandFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
