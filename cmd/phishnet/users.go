package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/phishnet/internal/cli"
	"github.com/Veraticus/phishnet/internal/common"
	"github.com/Veraticus/phishnet/internal/generator"
	"github.com/spf13/cobra"
)

func usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage cardholders",
	}

	cmd.AddCommand(usersAddCmd())
	cmd.AddCommand(usersShowCmd())
	cmd.AddCommand(usersTravelCmd())

	return cmd
}

func usersAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a cardholder",
		Example: `  phishnet users add --first Ada --last Lovelace --email ada@example.com \
    --phone +15555550100 --location "New York"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var req generator.NewUserRequest
			req.FirstName, _ = cmd.Flags().GetString("first")
			req.LastName, _ = cmd.Flags().GetString("last")
			req.Email, _ = cmd.Flags().GetString("email")
			req.Phone, _ = cmd.Flags().GetString("phone")
			req.Location, _ = cmd.Flags().GetString("location")

			gen, err := generator.New(generator.DefaultConfig(), nil)
			if err != nil {
				return err
			}
			user, err := gen.NewUser(req)
			if err != nil {
				return err
			}

			store, err := initDatastore(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.SaveUser(cmd.Context(), user); err != nil {
				return err
			}

			slog.Info("User registered", "user_id", user.ID)
			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Registered %s %s as %s", user.FirstName, user.LastName, user.ID)))
			return nil
		},
	}

	cmd.Flags().String("first", "", "First name")
	cmd.Flags().String("last", "", "Last name")
	cmd.Flags().String("email", "", "Email address for alerts")
	cmd.Flags().String("phone", "", "Phone number for SMS alerts (E.164)")
	cmd.Flags().String("location", "", "Home location")

	return cmd
}

func usersShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show a cardholder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := initDatastore(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			user, err := store.GetUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			travel := "off"
			if user.Travel.TravelModeEnabled {
				travel = "on"
				if len(user.Travel.TrustedLocations) > 0 {
					travel += " (" + strings.Join(user.Travel.TrustedLocations, ", ") + ")"
				}
			}

			fmt.Println(cli.RenderBox(user.FirstName+" "+user.LastName, strings.Join([]string{
				"ID:        " + user.ID,
				"Email:     " + user.Email,
				"Phone:     " + user.Phone,
				"Location:  " + user.Location,
				"Status:    " + string(user.Status),
				"Travel:    " + travel,
			}, "\n")))
			return nil
		},
	}
}

func usersTravelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "travel <user-id>",
		Short: "Turn travel mode on or off",
		Long: `While travel mode is on, transactions in the trusted locations add
no location risk to the user's fraud score.`,
		Example: `  phishnet users travel user_1a2b3c4d --on --trusted London,Tokyo
  phishnet users travel user_1a2b3c4d --off`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			on, _ := cmd.Flags().GetBool("on")
			off, _ := cmd.Flags().GetBool("off")
			trusted, _ := cmd.Flags().GetStringSlice("trusted")

			if on == off {
				return common.NewUserError("pass exactly one of --on or --off", nil)
			}
			if off {
				trusted = nil
			}

			store, err := initDatastore(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.SetTravelMode(cmd.Context(), args[0], on, trusted); err != nil {
				return err
			}

			if on {
				fmt.Println(cli.FormatSuccess("Travel mode on, trusted: " + strings.Join(trusted, ", ")))
			} else {
				fmt.Println(cli.FormatSuccess("Travel mode off"))
			}
			return nil
		},
	}

	cmd.Flags().Bool("on", false, "Enable travel mode")
	cmd.Flags().Bool("off", false, "Disable travel mode")
	cmd.Flags().StringSlice("trusted", nil, "Locations to trust while travelling")

	return cmd
}
