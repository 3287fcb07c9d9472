package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/malbeclabs/pathsql/pkg/sqlvalidate"
)

type ValidateCmd struct{}

func NewValidateCmd() *ValidateCmd {
	return &ValidateCmd{}
}

func (c *ValidateCmd) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file.sql ...]",
		Short: "Check queries against the read-only safety rules (reads stdin without arguments)",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				return report(out, "<stdin>", string(data))
			}

			var invalid int
			for _, name := range args {
				data, err := os.ReadFile(name)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", name, err)
				}
				if err := report(out, name, string(data)); err != nil {
					invalid++
				}
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d queries invalid", invalid, len(args))
			}
			return nil
		},
	}
}

func report(w io.Writer, name, sql string) error {
	res := sqlvalidate.Validate(sql)
	if res.Valid {
		fmt.Fprintf(w, "%s: VALID\n", name)
		return nil
	}
	fmt.Fprintf(w, "%s: INVALID: %s\n", name, res.Error())
	return fmt.Errorf("%s is invalid", name)
}
