package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"

	"campaign-mailer-go/internal/config"
)

var redirectURL string

// gmailTokenCmd walks through the OAuth2 consent flow and prints the refresh
// token the gmail provider needs
var gmailTokenCmd = &cobra.Command{
	Use:   "gmail-token",
	Short: "Obtain a Gmail refresh token for the gmail mail provider",
	Long: `Prints a Google consent URL for GMAIL_CLIENT_ID, reads the authorization
code returned to the redirect URL and prints the refresh token to put in
GMAIL_REFRESH_TOKEN.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// the refresh token is still missing, so the full validation cannot pass
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		gc := cfg.Mail.Gmail
		if gc.ClientID == "" || gc.ClientSecret == "" {
			return fmt.Errorf("please set GMAIL_CLIENT_ID and GMAIL_CLIENT_SECRET")
		}

		oauthConfig := &oauth2.Config{
			ClientID:     gc.ClientID,
			ClientSecret: gc.ClientSecret,
			Scopes:       []string{gmail.GmailSendScope},
			Endpoint:     google.Endpoint,
			RedirectURL:  redirectURL,
		}

		out := cmd.OutOrStdout()
		authURL := oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
		fmt.Fprintf(out, "Go to the following link in your browser: %v\n", authURL)
		fmt.Fprintln(out, "\nAfter authorization, copy the 'code' parameter from the redirect URL.")

		var authCode string
		fmt.Fprint(out, "\nEnter the authorization code: ")
		if _, err := fmt.Fscan(cmd.InOrStdin(), &authCode); err != nil {
			return fmt.Errorf("failed to read authorization code: %w", err)
		}

		tok, err := oauthConfig.Exchange(cmd.Context(), authCode)
		if err != nil {
			return fmt.Errorf("unable to retrieve token: %w", err)
		}

		fmt.Fprintf(out, "\nRefresh Token: %s\n", tok.RefreshToken)
		fmt.Fprintf(out, "Expiry: %v\n", tok.Expiry)
		fmt.Fprintln(out, "\nAdd the refresh token to your environment variables:")
		fmt.Fprintf(out, "export GMAIL_REFRESH_TOKEN=%q\n", tok.RefreshToken)
		return nil
	},
}

func init() {
	gmailTokenCmd.Flags().StringVar(&redirectURL, "redirect-url", "http://localhost:8080/callback", "OAuth2 redirect URL registered for the client")
}
