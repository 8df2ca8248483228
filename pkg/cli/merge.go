package cli

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"

	"github.com/platinummonkey/apievolve/pkg/api"
	"github.com/platinummonkey/apievolve/pkg/compatibility"
	"github.com/platinummonkey/apievolve/pkg/httputil"
	"github.com/platinummonkey/apievolve/pkg/schema"
)

func newMergeCommand() *Command {
	cmd := &Command{
		Name:        "merge",
		Description: "Print the merged model of supported provider revisions",
		Flags:       flag.NewFlagSet("merge", flag.ContinueOnError),
		Run:         runMerge,
	}

	cmd.Flags.String("history", "", "Directory of provider revision documents, or a history name with -registry (required)")
	cmd.Flags.String("supported", "", "Comma separated supported revisions (default: all revisions)")
	cmd.Flags.String("format", "yaml", "Output format: yaml, json")
	registryFlag(cmd.Flags)

	return cmd
}

func runMerge(args []string) error {
	cmd := newMergeCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	history := cmd.Flags.Lookup("history").Value.String()
	format := cmd.Flags.Lookup("format").Value.String()
	registry := cmd.Flags.Lookup("registry").Value.String()

	if history == "" {
		return fmt.Errorf("--history is required")
	}
	if format != "yaml" && format != "json" {
		return fmt.Errorf("invalid format %q: use yaml or json", format)
	}
	supported, err := httputil.ParseIntList(cmd.Flags.Lookup("supported").Value.String())
	if err != nil {
		return err
	}

	var out []byte
	if registry != "" {
		out, err = mergeRemote(registry, history, supported, format)
	} else {
		out, err = mergeLocal(history, supported, format)
	}

	var verr *compatibility.ViolationError
	var apiErr *APIError
	switch {
	case errors.As(err, &verr):
		printViolations(api.NewViolationDetails(verr.Violations))
		return fmt.Errorf("revisions cannot be merged: %w", err)
	case errors.As(err, &apiErr) && len(apiErr.Violations) > 0:
		printViolations(apiErr.Violations)
		return err
	case err != nil:
		return err
	}

	_, err = stdout.Write(out)
	return err
}

func mergeLocal(dir string, supported []int, format string) ([]byte, error) {
	h, err := loadHistory(dir)
	if err != nil {
		return nil, err
	}
	if len(supported) == 0 {
		supported = h.RevisionNumbers()
	}
	model, err := h.Merge(supported)
	if err != nil {
		return nil, err
	}

	doc := schema.Encode(model.Definition())
	if format == "yaml" {
		return schema.Marshal(doc)
	}
	out, err := json.MarshalIndent(api.MergedResponse{
		History:            h.Name(),
		SupportedRevisions: model.Supported(),
		Definition:         doc,
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

func mergeRemote(registry, history string, supported []int, format string) ([]byte, error) {
	c, err := newClient(registry)
	if err != nil {
		return nil, err
	}
	return c.Merged(history, supported, format)
}
