// beame2e 调试与预热命令：翻译路径模板、登录并缓存会话、管理会话库
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"beame2e/internal/config"
	"beame2e/internal/logger"
)

var (
	configFile string

	cfg *config.Config
	log logger.Logger
)

var rootCmd = &cobra.Command{
	Use:           "beame2e",
	Short:         "Route interception and session tooling for the Beam e2e suite",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return err
		}
		log = logger.New(cfg)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "beame2e.yaml", "config file path (optional, BEAM_ env overrides)")
	rootCmd.AddCommand(translateCmd, loginCmd, sessionsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
