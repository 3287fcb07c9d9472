package cli

import (
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/malbeclabs/pathsql/pkg/capability"
	"github.com/malbeclabs/pathsql/pkg/config"
	"github.com/malbeclabs/pathsql/pkg/gateway"
)

type ModelsCmd struct {
	cfg *config.Config
}

func NewModelsCmd(cfg *config.Config) *ModelsCmd {
	return &ModelsCmd{cfg: cfg}
}

func (c *ModelsCmd) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "models [model ...]",
		Short: "Show the capability rules, or how the given models resolve",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := c.cfg.Registry()
			if err != nil {
				return err
			}
			if len(args) == 0 {
				renderRules(cmd.OutOrStdout(), registry.Rules())
				return nil
			}
			renderResolved(cmd.OutOrStdout(), registry, args)
			return nil
		},
	}
}

func renderRules(w io.Writer, rules []capability.Rule) {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Pattern", "Class"})
	for _, r := range rules {
		table.Append([]string{r.Pattern, string(r.Class)})
	}
	table.SetFooter([]string{"*", string(capability.GeneralPurpose)})
	table.Render()
}

func renderResolved(w io.Writer, registry *capability.Registry, models []string) {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Model", "Provider", "Class", "Max Tokens", "Response"})
	for _, m := range models {
		class := registry.Resolve(m)
		p := capability.ProfileFor(class)
		table.Append([]string{m, gateway.Provider(m), string(class), strconv.FormatInt(p.MaxTokens, 10), string(p.ResponseShape)})
	}
	table.Render()
}
