// cmd/camctl/discover.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sua-org/cam-scout/internal/camhttp"
	"github.com/sua-org/cam-scout/internal/classifier"
	"github.com/sua-org/cam-scout/internal/config"
	"github.com/sua-org/cam-scout/internal/discovery"
	"github.com/sua-org/cam-scout/internal/scanner"
)

var (
	discoverSubnet string
	discoverOutput string
)

var discoverCmd = &cobra.Command{
	Use:     "discover",
	Short:   "Scan a /24 and list the cameras found",
	Example: `  camctl discover --subnet 192.168.1 --json --output cameras.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if discoverSubnet != "" && !config.ValidPrefix(discoverSubnet) {
			return fmt.Errorf("invalid subnet %q, expected a.b.c", discoverSubnet)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		d := discovery.NewDiscoverer(
			scanner.New(cfg.Scan),
			classifier.New(cfg.Classify, camhttp.NewClient()),
			cfg.Classify.MaxConcurrency,
			cfg.Scan.Deadline,
		)
		fmt.Fprintln(os.Stderr, "Scanning...")
		pass, err := d.Run(ctx, discoverSubnet)
		if err != nil {
			return err
		}
		report := pass.Report()

		if discoverOutput != "" {
			f, err := os.Create(discoverOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := discovery.WriteJSON(f, report); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Report saved to %s\n", discoverOutput)
		}

		if jsonOutput {
			return discovery.WriteJSON(os.Stdout, report)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "IP\tPORT\tMANUFACTURER\tMODEL\tONVIF\tAUTH\tCONFIDENCE")
		fmt.Fprintln(w, "--\t----\t------------\t-----\t-----\t----\t----------")
		for _, c := range report.Cameras {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%t\t%t\t%s\n",
				c.IP, c.Port, c.Manufacturer, c.Model, c.ONVIFSupport, c.AuthRequired, c.Confidence)
		}
		w.Flush()
		fmt.Printf("\n%d cameras in %s (%d hosts alive)\n",
			report.TotalFound, time.Duration(report.ElapsedMs)*time.Millisecond, pass.Hosts)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().StringVar(&discoverSubnet, "subnet", "", "Subnet prefix a.b.c (default: local interfaces)")
	discoverCmd.Flags().StringVarP(&discoverOutput, "output", "o", "", "Also write the JSON report to this file")
}
