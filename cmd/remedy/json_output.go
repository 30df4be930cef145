package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// emitJSON prints v as indented JSON for the --json flags, so command output
// stays scriptable.
func emitJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
