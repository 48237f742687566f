// cmd/camctl/capture.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sua-org/cam-scout/internal/camhttp"
	"github.com/sua-org/cam-scout/internal/capture"
	"github.com/sua-org/cam-scout/internal/classifier"
	"github.com/sua-org/cam-scout/internal/core"
)

var (
	captureOutput string
	capturePort   int
	capturePath   string
)

var captureCmd = &cobra.Command{
	Use:     "capture <ip>",
	Short:   "Take a JPEG snapshot walking the protocol fallback ladder",
	Example: `  camctl capture 192.168.1.20 --username admin --password secret --output snap.jpg`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ip := args[0]
		if net.ParseIP(ip) == nil {
			return fmt.Errorf("invalid ip %q", ip)
		}
		cfg := loadConfig()
		ctx := context.Background()
		client := camhttp.NewClient()

		// classifica antes para a escada saber o fabricante; sem câmera reconhecida, segue genérico
		d, err := classifier.New(cfg.Classify, client).Probe(ctx, ip)
		if err != nil {
			if !errors.Is(err, core.ErrNotACamera) {
				return err
			}
			d = core.CameraDescriptor{Address: ip, Port: 80, Manufacturer: core.UnknownManufacturer}
		}
		if capturePort != 0 {
			d.Port = capturePort
		}
		d.Username = viper.GetString("username")
		d.Password = viper.GetString("password")
		d.PreferredPath = capturePath

		res := capture.New(cfg.Capture, client).Capture(ctx, d)

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
		} else {
			for _, a := range res.Attempts {
				status := "ok"
				if a.Error != "" {
					status = a.Error
				}
				fmt.Printf("  %-16s %5dms  %s\n", a.Method, a.ElapsedMs, status)
			}
		}

		if !res.Succeeded {
			return fmt.Errorf("capture failed: %s", res.Error)
		}
		if err := os.WriteFile(captureOutput, res.Image, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", captureOutput, err)
		}
		if !jsonOutput {
			fmt.Printf("Snapshot (%s, %s, %d bytes) saved to %s\n",
				res.MethodUsed, res.Resolution, res.FileSizeBytes, captureOutput)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(captureCmd)
	captureCmd.Flags().StringVarP(&captureOutput, "output", "o", "snapshot.jpg", "Output file")
	captureCmd.Flags().IntVar(&capturePort, "port", 0, "HTTP port (default: detected or 80)")
	captureCmd.Flags().StringVar(&capturePath, "path", "", "Preferred snapshot path, tried first")
}
