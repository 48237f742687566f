// cmd/camctl/probe.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sua-org/cam-scout/internal/camhttp"
	"github.com/sua-org/cam-scout/internal/classifier"
	"github.com/sua-org/cam-scout/internal/discovery"
)

var probeCmd = &cobra.Command{
	Use:   "probe <ip>",
	Short: "Classify a single host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if net.ParseIP(args[0]) == nil {
			return fmt.Errorf("invalid ip %q", args[0])
		}
		cfg := loadConfig()

		d, err := classifier.New(cfg.Classify, camhttp.NewClient()).Probe(context.Background(), args[0])
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(d)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Address:\t%s\n", d.HostPort())
		fmt.Fprintf(w, "Manufacturer:\t%s\n", d.Manufacturer)
		fmt.Fprintf(w, "Model:\t%s\n", d.Model)
		fmt.Fprintf(w, "Firmware:\t%s\n", d.FirmwareVersion)
		fmt.Fprintf(w, "Protocol:\t%s\n", d.ProtocolType)
		fmt.Fprintf(w, "ONVIF:\t%t\n", d.ONVIFSupported)
		fmt.Fprintf(w, "Auth required:\t%t\n", d.AuthRequired)
		fmt.Fprintf(w, "Confidence:\t%s\n", d.Confidence)
		fmt.Fprintf(w, "Suggested name:\t%s\n", discovery.SuggestedName(d))
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
}
