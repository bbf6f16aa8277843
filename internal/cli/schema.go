package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"form990/internal/app"
	"form990/internal/formatter"
)

func newSchemaCommand(opts *options) *cobra.Command {
	var dump bool

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Show the field schema",
		Long: `List the schema fields and their candidate paths. With --dump the
schema is printed as YAML, ready to be edited and passed back via schema.file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.LoadSchema(opts.cfg.Schema.File)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if dump {
				data, err := s.Marshal()
				if err != nil {
					return err
				}

				_, err = out.Write(data)

				return err
			}

			rows := make([][]string, 0, len(s.Fields))
			for i, f := range s.Fields {
				rows = append(rows, []string{strconv.Itoa(i + 1), f.Name, strings.Join(f.Candidates(), " or ")})
			}

			fmt.Fprintf(out, "Schema %s (%s)\n\n", s.Version, s.Namespace)
			fmt.Fprint(out, formatter.Table([]string{"#", "Field", "Paths"}, rows))

			if s.Contractors.Max > 0 {
				fmt.Fprintf(out, "\nUp to %d contractors from %s: %d columns\n",
					s.Contractors.Max, s.Contractors.Group, len(s.ContractorKeys()))
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&dump, "dump", false, "print the schema as YAML")

	return cmd
}
