package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mailworks/gmail-mcp/internal/google"
)

// newAuthCmd creates the auth command for the out-of-band OAuth flow used by
// the stdio transport. Without --code it prints the authorization URL; with
// --code it exchanges the code and writes the token to the on-disk cache.
func newAuthCmd() *cobra.Command {
	var (
		account string
		code    string
	)

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize Gmail access for an account",
		Long: `Authorize Gmail access for a named account.

Run without --code to print the authorization URL. Visit the URL, grant
access, and run the command again with the authorization code:

  gmail-mcp auth --account work
  gmail-mcp auth --account work --code 4/0Af...

Tokens are cached on disk and refreshed automatically. This flow is only
needed for the stdio transport; HTTP transports authenticate through the
OAuth middleware.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if code == "" {
				if google.HasTokenForAccount(account) {
					fmt.Printf("Account %q is already authorized. Re-authorize by providing a new code.\n\n", account)
				}
				fmt.Printf("Visit this URL to authorize Gmail access for account %q:\n\n  %s\n\nThen run:\n\n  gmail-mcp auth --account %s --code <authorization-code>\n",
					account, google.GetAuthURLForAccount(account), account)
				return nil
			}

			if err := google.SaveTokenForAccount(context.Background(), account, code); err != nil {
				return fmt.Errorf("failed to save token for account %s: %w", account, err)
			}
			fmt.Printf("Authorization successful for account %q. Token saved.\n", account)
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "default", "Google account name to authorize")
	cmd.Flags().StringVar(&code, "code", "", "Authorization code from Google OAuth")

	return cmd
}
