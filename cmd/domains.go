package main

import (
	"context"
	"fmt"

	"iconload/internal/config"
	"iconload/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func domainsCommand(cfg *config.Config) *cobra.Command {
	var count bool

	cmd := &cobra.Command{
		Use:   "domains",
		Short: "Loads the domain list and prints the hostnames that would be requested",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			domains, err := loadDomains(cfg)
			if err != nil {
				logger.Fatal(ctx, "could not load domains", zap.String("file", cfg.Target.DomainsFile), zap.Error(err))
			}

			out := cmd.OutOrStdout()
			if count {
				_, _ = fmt.Fprintln(out, domains.Len())

				return
			}
			for _, host := range domains.Hosts() {
				_, _ = fmt.Fprintln(out, host)
			}
		},
	}

	cmd.Flags().StringVar(&cfg.Target.DomainsFile, "domains", cfg.Target.DomainsFile, "CSV file with the domains")
	cmd.Flags().BoolVar(&count, "count", false, "print only the number of hostnames")

	return cmd
}
