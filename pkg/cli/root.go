package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// stdout receives command output
var stdout io.Writer = os.Stdout

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// NewRootCommand creates the root command
func NewRootCommand() *Command {
	root := &Command{
		Name:        "apievolve",
		Description: "apievolve - API revision history and consumer resolution CLI",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("apievolve", flag.ContinueOnError),
	}

	// Add subcommands
	root.Subcommands["resolve"] = newResolveCommand()
	root.Subcommands["merge"] = newMergeCommand()
	root.Subcommands["push"] = newPushCommand()
	root.Subcommands["list"] = newListCommand()

	return root
}

// Execute runs the command with the process arguments
func (c *Command) Execute() error {
	return c.ExecuteArgs(os.Args[1:])
}

// ExecuteArgs runs the command with args, the first naming the subcommand
func (c *Command) ExecuteArgs(args []string) error {
	if len(args) == 0 {
		return c.usage()
	}

	// Check for help flag
	if strings.EqualFold(args[0], "-h") || strings.EqualFold(args[0], "--help") || args[0] == "help" {
		return c.usage()
	}

	// Check for subcommand
	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage() error {
	fmt.Fprintf(stdout, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(stdout, "Commands:\n")

	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(stdout, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}

// registryFlag registers the -registry flag shared by the remote commands
func registryFlag(flags *flag.FlagSet) *string {
	def := os.Getenv("APIEVOLVE_REGISTRY_URL")
	return flags.String("registry", def, "Registry URL (default $APIEVOLVE_REGISTRY_URL)")
}
