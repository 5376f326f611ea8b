package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackmichael/bluesky-crosspost/internal/jobs"
)

func newPostCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "post <status-id>",
		Short: "Cross-post a status now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open()
			if err != nil {
				return err
			}
			defer a.Close()

			statusID := args[0]
			if err := a.Queue.Do(cmd.Context(), jobs.Job{Kind: jobs.KindPublishPost, PostID: statusID}); err != nil {
				return err
			}

			uri, err := a.Repo.GetRecordURI(cmd.Context(), statusID)
			if err != nil {
				return err
			}
			if uri == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "status %s was not cross-posted\n", statusID)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), uri)
			return nil
		},
	}
}

func newDeleteCmd(open opener) *cobra.Command {
	var (
		accountID string
		recordURI string
	)

	cmd := &cobra.Command{
		Use:   "delete <status-id>",
		Short: "Delete the mirrored record of a status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open()
			if err != nil {
				return err
			}
			defer a.Close()

			return a.Queue.Do(cmd.Context(), jobs.Job{
				Kind:      jobs.KindDeletePost,
				AccountID: accountID,
				PostID:    args[0],
				RecordURI: recordURI,
			})
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "source account id owning the status")
	cmd.Flags().StringVar(&recordURI, "record-uri", "", "AT-URI to delete instead of the stored mapping")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}
