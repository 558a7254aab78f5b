package commands

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"hwscraper-backend/lib/keychain"
	"hwscraper-backend/lib/serviceutil"
	"hwscraper-backend/lib/session"
)

var (
	credentialsUser   *string
	credentialsSite   *string
	credentialsConfig *string
)

func init() {
	credentialsUser = credentialsCmd.Flags().String("user", "", "User id to store credentials for.")
	credentialsSite = credentialsCmd.Flags().String("site", "", "Portal the credentials belong to.")
	credentialsConfig = credentialsCmd.Flags().String("config", "scraperd.json5", "Path to the config file.")
	credentialsCmd.MarkFlagRequired("user")
	credentialsCmd.MarkFlagRequired("site")
	rootCmd.AddCommand(credentialsCmd)
}

var credentialsCmd = &cobra.Command{
	Use:   "set-credentials --user <id> --site <site>",
	Short: "Stores portal credentials, read from stdin, for later runs.",
	Run: func(cmd *cobra.Command, args []string) {
		config := MustLoadConfig(*credentialsConfig)

		db, err := OpenDB(config.Database)
		if err != nil {
			serviceutil.Fatal("failed to open state database", err)
		}
		defer db.Close()

		reader := bufio.NewReader(os.Stdin)
		fmt.Fprint(os.Stderr, "username: ")
		username, err := reader.ReadString('\n')
		if err != nil {
			serviceutil.Fatal("failed to read username", err)
		}
		fmt.Fprint(os.Stderr, "password: ")
		password, err := reader.ReadString('\n')
		if err != nil {
			serviceutil.Fatal("failed to read password", err)
		}

		store := keychain.NewStore(db)
		err = store.SetCredentials(cmd.Context(), *credentialsUser, *credentialsSite, keychain.Credentials{
			Username: strings.TrimSpace(username),
			Password: strings.TrimSpace(password),
		})
		if err != nil {
			serviceutil.Fatal("failed to store credentials", err)
		}

		// a session minted under the old password is now suspect, drop
		// it so the next run logs in with the new one
		sessions := session.NewStore(db, session.StoreOptions{})
		sessions.Invalidate(cmd.Context(), *credentialsUser, *credentialsSite)

		slog.Info("credentials stored", "site", *credentialsSite)
	},
}
