package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"beame2e/internal/route"
	"beame2e/pkg/model"
)

var translateCmd = &cobra.Command{
	Use:   "translate <path>",
	Short: "Print the matcher a path template compiles to",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranslate,
}

var (
	translateMethod string
	translateTarget string
)

func init() {
	translateCmd.Flags().StringVarP(&translateMethod, "method", "m", "GET", "HTTP method, * matches any")
	translateCmd.Flags().StringVarP(&translateTarget, "target", "t", string(model.APIBeam), "API target: beam, onboarding or unleash")
}

func runTranslate(cmd *cobra.Command, args []string) error {
	m, err := route.NewTranslator(cfg).Translate(args[0], &route.Overrides{Method: translateMethod}, model.APITarget(translateTarget))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), m.String())
	return nil
}
