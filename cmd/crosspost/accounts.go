package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackmichael/bluesky-crosspost/internal/domain"
	"github.com/blackmichael/bluesky-crosspost/internal/jobs"
)

func newSyncProfileCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-profile <account-id>",
		Short: "Push profile changes of an account to its mirror",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open()
			if err != nil {
				return err
			}
			defer a.Close()

			return a.Queue.Do(cmd.Context(), jobs.Job{Kind: jobs.KindSyncProfile, AccountID: args[0]})
		},
	}
}

func newCreateAccountCmd(open opener) *cobra.Command {
	var (
		email    string
		username string
	)

	cmd := &cobra.Command{
		Use:   "create-account <account-id>",
		Short: "Enable cross-posting for an account and create its PDS mirror",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := open()
			if err != nil {
				return err
			}
			defer a.Close()

			accountID := args[0]
			account, err := a.Repo.GetAccount(ctx, accountID)
			switch {
			case errors.Is(err, domain.ErrAccountNotFound):
				account = &domain.Account{ID: accountID}
			case err != nil:
				return err
			}
			if account.Linked() {
				fmt.Fprintf(cmd.OutOrStdout(), "account %s is already linked to %s\n", accountID, account.Handle)
				return nil
			}

			if username == "" {
				remote, err := a.Mastodon.GetAccount(ctx, accountID)
				if err != nil {
					return err
				}
				username = remote.Username
			}
			account.Username = username
			account.Email = email
			account.CrossPostingEnabled = true
			if err := a.Repo.SaveAccount(ctx, account); err != nil {
				return err
			}

			if err := a.Queue.Do(ctx, jobs.Job{Kind: jobs.KindCreateAccount, AccountID: accountID}); err != nil {
				return err
			}

			linked, err := a.Repo.GetAccount(ctx, accountID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", linked.Handle, linked.DID)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email address registered with the PDS account")
	cmd.Flags().StringVar(&username, "username", "", "username for the PDS handle (defaults to the Mastodon username)")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newSetCrossPostingCmd(open opener, enabled bool) *cobra.Command {
	use, short := "disable <account-id>", "Stop cross-posting for an account"
	if enabled {
		use, short = "enable <account-id>", "Resume cross-posting for an account"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open()
			if err != nil {
				return err
			}
			defer a.Close()

			return a.Repo.SetCrossPosting(cmd.Context(), args[0], enabled)
		},
	}
}

func newAccountCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "account <account-id>",
		Short: "Show the mirror linked to an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open()
			if err != nil {
				return err
			}
			defer a.Close()

			account, err := a.Repo.GetAccount(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:        %s\n", account.ID)
			fmt.Fprintf(out, "username:  %s\n", account.Username)
			fmt.Fprintf(out, "handle:    %s\n", account.Handle)
			fmt.Fprintf(out, "did:       %s\n", account.DID)
			fmt.Fprintf(out, "enabled:   %t\n", account.CrossPostingEnabled)
			fmt.Fprintf(out, "linked:    %t\n", account.Linked())
			return nil
		},
	}
}
