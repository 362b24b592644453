package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitalsd/vitalsd/internal/auth"
	"github.com/vitalsd/vitalsd/internal/model"
	"github.com/vitalsd/vitalsd/internal/store/postgres"
)

// newKeygenCmd generates a fresh API token, optionally registering it as a
// credential when a database and user are given.
func newKeygenCmd() *cobra.Command {
	var (
		databaseURL string
		userID      string
		name        string
		scopes      []string
		expiresDays int
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an API token (and optionally store its credential)",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := auth.GenerateKey()
			if err != nil {
				return err
			}
			hash, err := auth.HashKey(token)
			if err != nil {
				return err
			}

			if databaseURL == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "token: ", token)
				fmt.Fprintln(cmd.OutOrStdout(), "hash:  ", hash)
				fmt.Fprintln(cmd.OutOrStdout(), "no --database-url given; store the hash yourself")
				return nil
			}
			if userID == "" {
				return fmt.Errorf("--user is required when storing the credential")
			}

			db, err := postgres.Open(databaseURL)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			cred := &model.Credential{
				UserID:  userID,
				KeyHash: hash,
				Scopes:  scopes,
			}
			if name != "" {
				cred.Name = &name
			}
			if expiresDays > 0 {
				at := time.Now().UTC().AddDate(0, 0, expiresDays)
				cred.ExpiresAt = &at
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			created, err := postgres.NewWithDB(db).Credentials().Create(ctx, cred)
			if err != nil {
				return fmt.Errorf("store credential: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "token:         ", token)
			fmt.Fprintln(cmd.OutOrStdout(), "credential_id: ", created.ID)
			fmt.Fprintln(cmd.OutOrStdout(), "the token is shown once; only its hash is stored")
			return nil
		},
	}
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres DSN; when set the credential is stored")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "Owning user id")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Credential display name")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{auth.ScopeWriteHealth}, "Granted scopes")
	cmd.Flags().IntVar(&expiresDays, "expires-days", 0, "Days until expiry (0 = never)")
	return cmd
}

// newHashkeyCmd hashes an existing plaintext token for manual storage.
func newHashkeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hashkey <token>",
		Short: "Print the argon2id hash of an existing token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashKey(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
