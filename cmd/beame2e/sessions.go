package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"beame2e/internal/storage"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect the persisted login sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete persisted sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessionsPurge,
}

var purgeExpired bool

func init() {
	sessionsPurgeCmd.Flags().BoolVar(&purgeExpired, "expired", false, "only delete sessions whose token has expired")
	sessionsCmd.AddCommand(sessionsListCmd, sessionsPurgeCmd)
}

func runSessionsList(cmd *cobra.Command, _ []string) error {
	store, err := storage.Open(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	now := time.Now()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EMAIL\tKEY\tEXPIRES\tSTATE")
	for _, r := range recs {
		state := "valid"
		if !r.ExpiresAt.After(now) {
			state = "expired"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Email, r.Key, r.ExpiresAt.Local().Format(time.DateTime), state)
	}
	return w.Flush()
}

func runSessionsPurge(cmd *cobra.Command, _ []string) error {
	store, err := storage.Open(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	var before time.Time
	if purgeExpired {
		before = time.Now()
	}
	n, err := store.Purge(cmd.Context(), before)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d session(s)\n", n)
	return nil
}
