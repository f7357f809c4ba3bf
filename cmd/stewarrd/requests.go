package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/stewarr/stewarr/internal/config"
	"github.com/stewarr/stewarr/internal/request"
)

var (
	requestsUser   string
	requestsActive bool
)

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "List tracked requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRequests(configPath)
	},
}

func init() {
	requestsCmd.Flags().StringVar(&requestsUser, "user", "", "Filter by requester")
	requestsCmd.Flags().BoolVar(&requestsActive, "active", false, "Only show non-terminal requests")
	rootCmd.AddCommand(requestsCmd)
}

func runRequests(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	db, err := openDatabase(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	store := request.NewStore(db)
	reqs, err := store.List(context.Background(), request.Filter{
		RequestedBy: requestsUser,
		Active:      requestsActive,
	})
	if err != nil {
		return err
	}

	if len(reqs) == 0 {
		fmt.Println("No requests found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TITLE\tKIND\tSTATUS\tREQUESTED BY\tREQUESTED AT")
	for _, r := range reqs {
		title := r.Title
		if r.Year > 0 {
			title = fmt.Sprintf("%s (%d)", r.Title, r.Year)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			title, r.Kind, r.Status, r.RequestedBy,
			r.RequestedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}
