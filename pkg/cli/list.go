package cli

import (
	"flag"
	"fmt"
	"text/tabwriter"
	"time"
)

func newListCommand() *Command {
	cmd := &Command{
		Name:        "list",
		Description: "List histories, or the revisions of one history",
		Flags:       flag.NewFlagSet("list", flag.ContinueOnError),
		Run:         runList,
	}

	cmd.Flags.String("history", "", "History name; lists its revisions when set")
	registryFlag(cmd.Flags)

	return cmd
}

func runList(args []string) error {
	cmd := newListCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	history := cmd.Flags.Lookup("history").Value.String()
	c, err := newClient(cmd.Flags.Lookup("registry").Value.String())
	if err != nil {
		return err
	}

	if history == "" {
		histories, err := c.Histories()
		if err != nil {
			return err
		}
		if len(histories) == 0 {
			fmt.Fprintln(stdout, "No histories found")
			return nil
		}
		for _, h := range histories {
			fmt.Fprintln(stdout, h)
		}
		return nil
	}

	records, err := c.Revisions(history)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REVISION\tCHECKSUM\tCREATED")
	for _, r := range records {
		fmt.Fprintf(w, "%d\t%s\t%s\n", r.Revision, r.Checksum, r.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}
