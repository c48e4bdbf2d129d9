package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/solarperformanceinsight/spi/internal/reconciler"
	"github.com/spf13/cobra"
)

func buildReconcileCommand() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Align the queue with the jobs in the database",
		Long: `Run the queue reconciler. It re-enqueues queued jobs missing from the queue,
drops entries of jobs that are gone or no longer queued and fails jobs whose
queue entries failed or timed out.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			b, err := openBackends(ctx, cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			r := reconciler.New(b.store, b.queue, cfg.Reconcile.Period, newCollector())
			if once {
				return r.Pass(ctx)
			}
			return r.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single pass and exit")

	return cmd
}
