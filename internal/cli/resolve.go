package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"form990/internal/catalog"
	"form990/internal/models"
)

func newResolveCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <ein> <year>",
		Short: "Find the filing handle for one organization and fiscal year",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := &opts.cfg.Catalog
			client := catalog.NewClient(cc, opts.log)
			req := models.NewRequest(0, args[0], args[1])

			handle, err := client.Resolve(cmd.Context(), req)
			if err != nil {
				return err
			}

			downloadURL, err := catalog.NewURLBuilder(cc).DownloadURL(handle)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "🔎 %s\n", req)
			fmt.Fprintf(out, "   Handle:   %s\n", handle)
			fmt.Fprintf(out, "   Download: %s\n", downloadURL)

			return nil
		},
	}
}
