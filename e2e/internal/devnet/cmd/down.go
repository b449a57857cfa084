package devnetcmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

type DownCmd struct {
	skipConfirm bool
}

func NewDownCmd() *DownCmd {
	return &DownCmd{}
}

func (c *DownCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "down",
		Aliases: []string{"destroy"},
		Short:   "Remove every container and network of the devnet",
		RunE: withDevnet(func(ctx context.Context, e *env, dn *LocalDevnet, cmd *cobra.Command, args []string) error {
			if !c.skipConfirm && !confirmDestroy(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), e.deployID) {
				fmt.Fprintln(cmd.OutOrStdout(), "--> Destroy operation cancelled.")
				return nil
			}
			return dn.Destroy(ctx)
		}),
	}
	cmd.Flags().BoolVarP(&c.skipConfirm, "yes", "y", false, "Skip confirmation prompt")
	return cmd
}

func confirmDestroy(ctx context.Context, in io.Reader, out io.Writer, deployID string) bool {
	fmt.Fprintf(out, "==> ⚠️ Are you sure you want to destroy devnet %s? (y/N): ", deployID)

	done := make(chan bool, 1)
	go func() {
		response, _ := bufio.NewReader(in).ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		done <- response == "y" || response == "yes"
	}()

	select {
	case confirmed := <-done:
		return confirmed
	case <-ctx.Done():
		fmt.Fprintln(out)
		return false
	}
}
