package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aleksaelezovic/quadra/internal/nquads"
	"github.com/spf13/cobra"
)

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "load <file.nq>...",
		Short: "Bulk load N-Quads files",
		Long: `Bulk load one or more N-Quads (or N-Triples) files into the store.
Use - to read from standard input. Each file is loaded in chunks; a
failure keeps the chunks already written.

Example:
  quadra load dump.nq
  quadra match -g DEFAULT | quadra load --data ./copy -`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close() // #nosec G104 - bulk load syncs its batches

			out := cmd.OutOrStdout()
			for _, name := range args {
				var r io.Reader = cmd.InOrStdin()
				if name != "-" {
					f, err := os.Open(name) // #nosec G304 - path comes from the operator
					if err != nil {
						return err
					}
					defer f.Close() // #nosec G104 - read-only file
					r = f
				}
				st, err := s.BulkLoad(commandContext(cmd), nquads.NewReader(r))
				if err != nil {
					return fmt.Errorf("load %s: %w", name, err)
				}
				fmt.Fprintf(out, "%s: %d quads, %d new terms in %s\n", name, st.Quads, st.NewTerms, st.Duration.Round(time.Millisecond))
			}
			return nil
		},
	}
}
