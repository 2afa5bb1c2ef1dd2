package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/aws/aws-sdk-go-v2/aws"

	"opsagent/internal/app"
	"opsagent/internal/approval"
	"opsagent/internal/awstools"
	"opsagent/internal/config"
	"opsagent/internal/tools"
)

func listTools(w io.Writer, cfg *config.Config, schema bool) error {
	reg := tools.NewAWSRegistry(awstools.NewClients(aws.Config{}), app.ToolOptions(cfg))

	if schema {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reg.Specs())
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tAPPROVAL\tDESCRIPTION")
	for _, t := range reg.List() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Name(), approvalLabel(t.Name()), t.Description())
	}
	return tw.Flush()
}

func approvalLabel(name string) string {
	switch {
	case approval.WriteTools[name]:
		return "always"
	case name == "athena_query":
		return "unless read-only"
	default:
		return "never"
	}
}
