package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ashahealth/mediwagon/internal/app"
	"github.com/ashahealth/mediwagon/internal/gateway"
	"github.com/ashahealth/mediwagon/internal/identity"
	"github.com/ashahealth/mediwagon/internal/observability"
	"github.com/ashahealth/mediwagon/internal/policy"
)

func newRegisterCommand(c *cli) *cobra.Command {
	var (
		reg         policy.Registration
		noInput     bool
		passwordArg bool
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a MediWagon account",
		Long: `Create an account with the auth backend.

Fields given as flags pre-fill the form. With --no-input the form is skipped
and the flags are validated as given; pair it with --password-stdin to pass
the password (used for the confirmation too).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, out := cmd.InOrStdin(), cmd.OutOrStdout()
			if passwordArg {
				secret, err := readSecret(in)
				if err != nil {
					return fmt.Errorf("reading password: %w", err)
				}
				reg.Profile.Password = secret
				reg.ConfirmPassword = secret
			}
			if !noInput {
				if err := promptRegistration(in, out, &reg); err != nil {
					return fmt.Errorf("registration form: %w", err)
				}
			}
			if err := policy.ValidateRegistration(reg); err != nil {
				return describeValidation(err)
			}

			client := app.NewGateway(c.cfg, nil)
			res, err := client.Register(cmd.Context(), reg.Profile)
			if err != nil {
				return describeGatewayError(err)
			}
			msg := strings.TrimSuffix(res.Message, ".")
			if msg == "" {
				msg = "Registration successful"
			}
			fmt.Fprintf(out, "%s. Sign in with `mediwagon login`.\n", msg)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&reg.Profile.Name, "name", "", "Full name")
	f.StringVar(&reg.Profile.Email, "email", "", "Email address")
	f.StringVar(&reg.Profile.Phone, "phone", "", "Phone number, 10 to 15 digits")
	f.IntVar(&reg.Profile.Age, "age", 0, "Age in years")
	f.StringVar(&reg.Profile.Address, "address", "", "Postal address")
	f.StringVar(&reg.Profile.Gender, "gender", "", "Gender")
	f.BoolVar(&passwordArg, "password-stdin", false, "Read the password from stdin")
	f.BoolVar(&noInput, "no-input", false, "Skip the interactive form")
	return cmd
}

func newLoginCommand(c *cli) *cobra.Command {
	var (
		email       string
		passwordArg bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the identity on this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, out := cmd.InOrStdin(), cmd.OutOrStdout()

			var (
				password string
				err      error
			)
			if passwordArg {
				password, err = readSecret(in)
			} else {
				password, err = promptPassword(in, out)
			}
			if err != nil {
				return fmt.Errorf("reading password: %w", err)
			}

			creds := gateway.Credentials{Email: strings.TrimSpace(email), Password: password}
			if err := policy.ValidateCredentials(creds); err != nil {
				return describeValidation(err)
			}

			ids, err := app.OpenIdentity(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer closeIdentity(ids)

			resp, err := app.NewGateway(c.cfg, nil).Login(cmd.Context(), creds)
			if err != nil {
				return describeGatewayError(err)
			}
			sess, err := ids.Login(cmd.Context(), resp)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Signed in as %s.\n", displayName(sess))
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().BoolVar(&passwordArg, "password-stdin", false, "Read the password from stdin")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the signed-in identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := app.OpenIdentity(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer closeIdentity(ids)
			if err := ids.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

func newWhoamiCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := app.OpenIdentity(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer closeIdentity(ids)
			sess := ids.Current()
			if !sess.Authenticated() {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s>\n", displayName(sess), sess.User.Email)
			return nil
		},
	}
}

var errNotSignedIn = errors.New("not signed in: run `mediwagon login` first")

// requireSession opens the identity store and fails when nobody is signed in.
// The caller closes the returned store.
func requireSession(cmd *cobra.Command, c *cli) (*identity.Store, identity.Session, error) {
	ids, err := app.OpenIdentity(cmd.Context(), c.cfg)
	if err != nil {
		return nil, identity.Session{}, err
	}
	sess := ids.Current()
	if !sess.Authenticated() {
		closeIdentity(ids)
		return nil, identity.Session{}, errNotSignedIn
	}
	return ids, sess, nil
}

func closeIdentity(ids *identity.Store) {
	if err := ids.Close(); err != nil {
		observability.Logger().Warn("identity close failed", "error", err)
	}
}

func displayName(sess identity.Session) string {
	if sess.User == nil {
		return ""
	}
	if sess.User.Name != "" {
		return sess.User.Name
	}
	return sess.User.Email
}

func describeValidation(err error) error {
	var verr *policy.ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	keys := make([]string, 0, len(verr.Fields))
	for k := range verr.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("please fix the following:")
	for _, k := range keys {
		fmt.Fprintf(&b, "\n  %s: %s", k, verr.Fields[k])
	}
	return errors.New(b.String())
}

// describeGatewayError prefers the backend's own message.
func describeGatewayError(err error) error {
	if gerr, ok := gateway.AsError(err); ok && gerr.Message != "" {
		return errors.New(gerr.Message)
	}
	return err
}
