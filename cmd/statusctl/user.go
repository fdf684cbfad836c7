package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-extras/cobraflags"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/statusify/statusify/internal/repository"
)

const (
	emailFlag         = "email"
	passwordFlag      = "password"
	passwordStdinFlag = "password-stdin"

	// passwordEnv keeps the initial password out of ps output and shell history.
	passwordEnv = "STATUSIFY_PASSWORD"
)

var createUserFlags = map[string]cobraflags.Flag{
	emailFlag: &cobraflags.StringFlag{
		Name:  emailFlag,
		Value: "",
		Usage: "Email address used to sign in (required)",
	},
	passwordFlag: &cobraflags.StringFlag{
		Name:  passwordFlag,
		Value: "",
		Usage: "Initial password; prefer --password-stdin or " + passwordEnv + ", flags are visible in ps",
	},
}

var tokenFlags = map[string]cobraflags.Flag{
	emailFlag: &cobraflags.StringFlag{
		Name:  emailFlag,
		Value: "",
		Usage: "Email address of the user (required)",
	},
}

func newUserCommand() *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage administrator accounts",
	}

	var admin, passwordStdin bool
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user who can manage incidents",
		Long: `Create a user who can manage incidents.

The password is read from stdin with --password-stdin, otherwise from
--password, otherwise from $` + passwordEnv + `.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			email := createUserFlags[emailFlag].GetString()
			password, err := resolvePassword(cmd.InOrStdin(), passwordStdin, createUserFlags[passwordFlag].GetString())
			if err != nil {
				return err
			}
			if email == "" || password == "" {
				return errors.New("--email and a password are required")
			}

			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			user, err := repository.NewUserRepository(db).CreateUser(cmd.Context(), email, password, admin)
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created user %d <%s>\n", user.ID, user.Email)
			return nil
		},
	}
	cobraflags.RegisterMap(createCmd, createUserFlags)
	createCmd.Flags().BoolVar(&admin, "admin", false, "Mark the user as an administrator")
	createCmd.Flags().BoolVar(&passwordStdin, passwordStdinFlag, false, "Read the initial password from the first line of stdin")

	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a new API token for a user",
		Long: `Issue a new API token for a user, replacing any previous token.

Clients send it as "Authorization: Token <token>" to manage incidents
without a browser session.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			email := tokenFlags[emailFlag].GetString()
			if email == "" {
				return errors.New("--email is required")
			}

			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			token := uuid.NewString()
			if _, err := repository.NewUserRepository(db).SetAPIToken(cmd.Context(), email, token); err != nil {
				return fmt.Errorf("set api token for %s: %w", email, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cobraflags.RegisterMap(tokenCmd, tokenFlags)

	userCmd.AddCommand(createCmd, tokenCmd)
	return userCmd
}

func resolvePassword(stdin io.Reader, fromStdin bool, flagValue string) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read password from stdin: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	if flagValue != "" {
		return flagValue, nil
	}
	return os.Getenv(passwordEnv), nil
}
