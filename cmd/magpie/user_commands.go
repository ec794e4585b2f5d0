package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"magpie/internal/catalog"
	"magpie/internal/config"
)

func newUserCommand(ctx *commandContext) *cobra.Command {
	userCmd := &cobra.Command{
		Use:     "user",
		Aliases: []string{"users"},
		Short:   "Manage studio accounts",
	}
	userCmd.AddCommand(newUserListCommand(ctx))
	userCmd.AddCommand(newUserProfileCommand(ctx))
	userCmd.AddCommand(newUserRoleCommand(ctx))
	return userCmd
}

func newUserListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *catalog.Store) error {
				users, err := store.ListUsers(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, users)
				}
				if len(users) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No accounts registered")
					return nil
				}
				rows := make([][]string, 0, len(users))
				for _, u := range users {
					rows = append(rows, []string{u.Phone, u.Nickname, u.Department, string(u.Role), humanize.Time(u.CreatedAt)})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Phone", "Nickname", "Department", "Role", "Joined"}, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func newUserProfileCommand(ctx *commandContext) *cobra.Command {
	var nickname, avatar, department string
	cmd := &cobra.Command{
		Use:   "profile <phone>",
		Short: "Edit an account's nickname, avatar or department",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var update catalog.ProfileUpdate
			if cmd.Flags().Changed("nickname") {
				update.Nickname = &nickname
			}
			if cmd.Flags().Changed("avatar") {
				update.AvatarURL = &avatar
			}
			if cmd.Flags().Changed("department") {
				update.Department = &department
			}
			if update == (catalog.ProfileUpdate{}) {
				return fmt.Errorf("nothing to change: pass --nickname, --avatar or --department")
			}
			return ctx.withStore(func(_ *config.Config, store *catalog.Store) error {
				user, err := store.UpdateProfile(cmd.Context(), args[0], update)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %s (%s, %s)\n", user.Phone, user.Nickname, user.Department)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&nickname, "nickname", "", "Display name")
	cmd.Flags().StringVar(&avatar, "avatar", "", "Avatar image URL")
	cmd.Flags().StringVar(&department, "department", "", "Department (must be listed in site settings)")
	return cmd
}

func newUserRoleCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "role <phone> <super_admin|admin|user>",
		Short: "Change an account's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *catalog.Store) error {
				user, err := store.SetRole(cmd.Context(), args[0], catalog.Role(args[1]))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", user.Phone, user.Role)
				return nil
			})
		},
	}
}
