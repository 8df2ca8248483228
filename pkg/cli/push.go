package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"
)

func newPushCommand() *Command {
	cmd := &Command{
		Name:        "push",
		Description: "Push a provider revision to the registry",
		Flags:       flag.NewFlagSet("push", flag.ContinueOnError),
		Run:         runPush,
	}

	cmd.Flags.String("history", "", "History name (required)")
	cmd.Flags.String("file", "", "Provider revision document (required)")
	registryFlag(cmd.Flags)

	return cmd
}

func runPush(args []string) error {
	cmd := newPushCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	history := cmd.Flags.Lookup("history").Value.String()
	file := cmd.Flags.Lookup("file").Value.String()
	registry := cmd.Flags.Lookup("registry").Value.String()

	if history == "" || file == "" {
		return fmt.Errorf("both --history and --file are required")
	}

	document, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", file, err)
	}

	c, err := newClient(registry)
	if err != nil {
		return err
	}

	record, err := c.Push(history, document)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && len(apiErr.Violations) > 0 {
			fmt.Fprintf(stdout, "Revision rejected: %s\n\n", apiErr.Message)
			printViolations(apiErr.Violations)
		}
		return err
	}

	fmt.Fprintf(stdout, "Pushed %s revision %d\n", record.History, record.Revision)
	fmt.Fprintf(stdout, "  ID:       %s\n", record.ID)
	fmt.Fprintf(stdout, "  Checksum: %s\n", record.Checksum)
	return nil
}
