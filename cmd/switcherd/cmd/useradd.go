package cmd

import (
	"fmt"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/swicore/switcher/internal/db"
)

var userPermission int

// useraddCmd bootstraps the first account: the control plane only accepts
// user creation from an already authenticated session.
var useraddCmd = &cobra.Command{
	Use:   "useradd <name>",
	Short: "Create a control plane user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Print("Password: ")
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return err
		}
		if len(password) == 0 {
			return fmt.Errorf("empty password")
		}

		hash, err := bcrypt.GenerateFromPassword(password, bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		store, err := db.Open(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer store.Close()

		user, err := store.CreateUser(cmd.Context(), args[0], string(hash), userPermission)
		if err != nil {
			return err
		}
		fmt.Printf("created user %q (id %d)\n", user.Name, user.ID)
		return nil
	},
}

func init() {
	useraddCmd.Flags().IntVar(&userPermission, "permission", 0, "permission level for the new user")
	rootCmd.AddCommand(useraddCmd)
}
