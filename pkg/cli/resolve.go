package cli

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/platinummonkey/apievolve/pkg/api"
	"github.com/platinummonkey/apievolve/pkg/compatibility"
	"github.com/platinummonkey/apievolve/pkg/httputil"
	"github.com/platinummonkey/apievolve/pkg/resolution"
	"github.com/platinummonkey/apievolve/pkg/service"
)

// ErrIncompatible is returned when a consumer definition does not resolve
var ErrIncompatible = errors.New("consumer definition is not compatible")

func newResolveCommand() *Command {
	cmd := &Command{
		Name:        "resolve",
		Description: "Resolve a consumer definition against supported provider revisions",
		Flags:       flag.NewFlagSet("resolve", flag.ContinueOnError),
		Run:         runResolve,
	}

	cmd.Flags.String("history", "", "Directory of provider revision documents, or a history name with -registry (required)")
	cmd.Flags.String("supported", "", "Comma separated supported revisions (default: all revisions)")
	cmd.Flags.String("consumer", "", "Consumer definition document (required)")
	cmd.Flags.String("format", "text", "Output format: text, json")
	cmd.Flags.Bool("verbose", false, "Show informational notes")
	registryFlag(cmd.Flags)

	return cmd
}

func runResolve(args []string) error {
	cmd := newResolveCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	history := cmd.Flags.Lookup("history").Value.String()
	consumerPath := cmd.Flags.Lookup("consumer").Value.String()
	format := cmd.Flags.Lookup("format").Value.String()
	verbose := cmd.Flags.Lookup("verbose").Value.String() == "true"
	registry := cmd.Flags.Lookup("registry").Value.String()

	if history == "" || consumerPath == "" {
		return fmt.Errorf("both --history and --consumer are required")
	}
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid format %q: use text or json", format)
	}
	supported, err := httputil.ParseIntList(cmd.Flags.Lookup("supported").Value.String())
	if err != nil {
		return err
	}

	consumer, err := os.ReadFile(consumerPath)
	if err != nil {
		return fmt.Errorf("failed to read consumer definition: %w", err)
	}

	var resp *api.ResolveResponse
	if registry != "" {
		resp, err = resolveRemote(registry, history, supported, consumer)
	} else {
		resp, err = resolveLocal(history, supported, consumer)
	}

	var violations []api.ViolationDetails
	var verr *compatibility.ViolationError
	var apiErr *APIError
	switch {
	case errors.As(err, &verr):
		violations = api.NewViolationDetails(verr.Violations)
	case errors.As(err, &apiErr) && len(apiErr.Violations) > 0:
		violations = apiErr.Violations
	case err != nil:
		return err
	}

	if format == "json" {
		return outputResolveJSON(resp, violations)
	}
	return outputResolveText(resp, violations, verbose)
}

func resolveLocal(dir string, supported []int, consumer []byte) (*api.ResolveResponse, error) {
	h, err := loadHistory(dir)
	if err != nil {
		return nil, err
	}
	if len(supported) == 0 {
		supported = h.RevisionNumbers()
	}

	def, err := service.CompileConsumer(consumer)
	if err != nil {
		return nil, err
	}
	res, err := resolution.NewResolver().Resolve(h, supported, def)
	if err != nil {
		return nil, err
	}
	resp := api.NewResolveResponse(h.Name(), res)
	return &resp, nil
}

func resolveRemote(registry, history string, supported []int, consumer []byte) (*api.ResolveResponse, error) {
	c, err := newClient(registry)
	if err != nil {
		return nil, err
	}
	if len(supported) == 0 {
		records, err := c.Revisions(history)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			supported = append(supported, r.Revision)
		}
	}
	return c.Resolve(history, supported, consumer)
}

func outputResolveJSON(resp *api.ResolveResponse, violations []api.ViolationDetails) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if len(violations) > 0 {
		if err := enc.Encode(map[string]interface{}{
			"compatible": false,
			"violations": violations,
		}); err != nil {
			return err
		}
		return ErrIncompatible
	}
	return enc.Encode(resp)
}

func outputResolveText(resp *api.ResolveResponse, violations []api.ViolationDetails, verbose bool) error {
	if len(violations) > 0 {
		fmt.Fprintf(stdout, "Result: \033[31mINCOMPATIBLE\033[0m\n\n")
		printViolations(violations)
		return ErrIncompatible
	}

	fmt.Fprintf(stdout, "Consumer %s revision %d against %s %v\n",
		resp.Consumer, resp.ConsumerRevision, resp.History, resp.SupportedRevisions)
	fmt.Fprintf(stdout, "Result: \033[32mCOMPATIBLE\033[0m\n\n")
	fmt.Fprint(stdout, resp.Resolution)

	if verbose && len(resp.Notes) > 0 {
		fmt.Fprintf(stdout, "\nNotes:\n\n")
		printViolations(resp.Notes)
	}
	return nil
}

func printViolations(violations []api.ViolationDetails) {
	for _, v := range violations {
		levelStr := v.Level
		switch v.Level {
		case compatibility.ViolationLevelError.String():
			levelStr = fmt.Sprintf("\033[31m%s\033[0m", levelStr)
		case compatibility.ViolationLevelWarning.String():
			levelStr = fmt.Sprintf("\033[33m%s\033[0m", levelStr)
		case compatibility.ViolationLevelInfo.String():
			levelStr = fmt.Sprintf("\033[36m%s\033[0m", levelStr)
		}

		fmt.Fprintf(stdout, "[%s] %s\n", levelStr, v.Kind)
		if v.Location != "" {
			fmt.Fprintf(stdout, "  Location: %s\n", v.Location)
		}
		fmt.Fprintf(stdout, "  Message:  %s\n\n", v.Message)
	}
}
