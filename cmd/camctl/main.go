// cmd/camctl/main.go
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sua-org/cam-scout/internal/config"
)

var (
	cfgFile    string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "camctl",
	Short: "Discover, probe and capture from IP cameras on the local network",
	Long: `camctl runs the cam-scout scanner, classifier and capture ladder directly
from the command line, without the HTTP service.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.camctl.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	rootCmd.PersistentFlags().String("username", "", "Camera username")
	rootCmd.PersistentFlags().String("password", "", "Camera password")
	rootCmd.PersistentFlags().Duration("timeout", 3*time.Second, "Per-request timeout")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")

	for _, k := range []string{"username", "password", "timeout", "log-level"} {
		_ = viper.BindPFlag(k, rootCmd.PersistentFlags().Lookup(k))
	}
}

// initConfig lê o arquivo de config e as variáveis CAMCTL_*.
func initConfig() {
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".camctl")
	}

	viper.SetEnvPrefix("camctl")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// arquivo é opcional
	_ = viper.ReadInConfig()
}

// loadConfig parte dos defaults do cam-scout e aplica o que veio do viper.
func loadConfig() *config.Config {
	cfg := config.Default()
	cfg.Log = config.LogConfig{Level: viper.GetString("log-level"), Format: "text"}
	config.InitLogger(cfg.Log)

	if u := viper.GetString("username"); u != "" {
		cfg.Classify.Username = u
		cfg.Classify.Password = viper.GetString("password")
	}
	if t := viper.GetDuration("timeout"); t > 0 {
		cfg.Classify.HTTPTimeout = t
		cfg.Classify.ONVIFTimeout = t
		cfg.Capture.StrategyTimeout = t
	}
	if s := viper.GetString("subnet"); s != "" {
		cfg.Scan.DefaultPrefix = s
	}
	return cfg
}
