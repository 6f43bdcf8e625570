package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/DannyMichaels/code-dojo-app/internal/auth"
	"github.com/DannyMichaels/code-dojo-app/pkg/models"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openDatabase(cmd.Context(), cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			if db == nil {
				return errors.New("the memory store has no schema; set database.type to sqlite or postgres")
			}
			defer db.Close()
			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", db.Driver())
			return nil
		},
	}
}

func newBeltRequirementsCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "belt-requirements",
		Short: "Print what each belt needs before promotion",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			table := cfg.Checker().RequirementTable()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(table)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "BELT\tNEXT\tCONCEPTS\tMASTERED\tAVG MASTERY\tSESSIONS")
			for _, b := range models.BeltOrder {
				req, ok := table[b]
				if !ok {
					continue
				}
				next, _ := b.Next()
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d%%\t%d\n",
					b, next, req.MinConcepts, req.MinMastered, req.MinMasteryPercent, req.MinSessions)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage API credentials",
	}

	hashKey := &cobra.Command{
		Use:   "hash-key",
		Short: "Hash an API key for security.api_key_hashes",
		Long: `hash-key reads an API key (without echo when stdin is a terminal) and
prints its bcrypt hash. Put the hash in security.api_key_hashes and hand the
key itself to the client.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := readSecret(cmd, "API key: ")
			if err != nil {
				return err
			}
			hash, err := auth.HashAPIKey(key)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}

	var userID string
	var ttl time.Duration
	token := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a learner",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(userID) == "" {
				return errors.New("--user is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Security.JWTSecret == "" {
				return errors.New("security.jwt_secret must be set so the server accepts the token")
			}
			if ttl <= 0 {
				ttl = cfg.Security.TokenTTL
			}
			a, err := auth.NewAuthenticator(auth.Config{JWTSecret: cfg.Security.JWTSecret, TokenTTL: ttl}, nil)
			if err != nil {
				return err
			}
			signed, expiresAt, err := a.IssueToken(userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	token.Flags().StringVar(&userID, "user", "", "Learner ID placed in the token subject")
	token.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default security.token_ttl)")

	cmd.AddCommand(hashKey, token)
	return cmd
}

// readSecret prompts without echo on a terminal and reads one line otherwise.
func readSecret(cmd *cobra.Command, prompt string) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		fmt.Fprint(cmd.ErrOrStderr(), prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read secret: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return strings.TrimSpace(line), nil
}
