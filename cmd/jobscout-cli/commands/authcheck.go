package commands

import (
	"log/slog"
	"os"
	"time"

	"jobscout-backend/lib/backoff"
	"jobscout-backend/lib/identity"
	"jobscout-backend/lib/scrapers/linkedin/core"
	"jobscout-backend/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var authcheckBaseUrl *string

func init() {
	authcheckBaseUrl = authcheckCmd.Flags().String("base-url", "https://www.linkedin.com", "Base url of the listing site.")
	rootCmd.AddCommand(authcheckCmd)
}

var authcheckCmd = &cobra.Command{
	Use:   "authcheck [--base-url <url>]",
	Short: "Validates credentials and session access without running a scrape.",
	Run: func(cmd *cobra.Command, args []string) {
		godotenv.Load()

		t := NewTable()
		t.AppendHeader(table.Row{"Check", "Result"})

		creds := core.CredentialsFromEnv()
		t.AppendRow(table.Row{"LINKEDIN_EMAIL", present(creds.Email != "")})
		t.AppendRow(table.Row{"LINKEDIN_PASSWORD", present(creds.Password != "")})
		t.AppendRow(table.Row{"LINKEDIN_LI_AT", present(creds.LiAt != "")})
		t.AppendRow(table.Row{"LINKEDIN_JSESSIONID", present(creds.JSessionID != "")})

		hasCookies := creds.LiAt != ""
		hasCredentials := creds.Email != "" && creds.Password != ""
		if !hasCookies && !hasCredentials {
			t.Render()
			slog.Error("no usable credentials, set either LINKEDIN_LI_AT or LINKEDIN_EMAIL and LINKEDIN_PASSWORD")
			os.Exit(1)
		}

		client, err := core.NewClient(cmd.Context(), core.ClientOptions{
			BaseUrl:     *authcheckBaseUrl,
			Credentials: creds,
			Identities:  identity.New(3),
			Policy: backoff.Policy{
				RateLimitBase:   time.Second * 5,
				ServerErrorWait: time.Second * 5,
				NetworkWaitMin:  time.Second * 2,
				NetworkWaitMax:  time.Second * 6,
			},
			MaxAttempts:    3,
			ReplenishCount: 3,
			Timeout:        time.Second * 15,
		})
		if err != nil {
			serviceutil.Fatal("failed to initialize client", err)
		}

		err = client.Login(cmd.Context())
		t.AppendRow(table.Row{"Login", present(err == nil)})
		t.AppendRow(table.Row{"Session state", client.State().String()})
		t.Render()

		if err != nil {
			serviceutil.Fatal("authentication failed", err)
		}
		slog.Info("authentication verified")
	},
}

func present(ok bool) string {
	if ok {
		return "ok"
	}
	return "missing"
}
