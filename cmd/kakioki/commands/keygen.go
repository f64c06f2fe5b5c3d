package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"kakioki/internal/crypto"
)

// keygen: create the local key pair, seal it under the password and
// publish the public key.
func keygenCmd() *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create your key pair and publish the public key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				return fmt.Errorf("password required (-p)")
			}
			acct, err := wire.CreateAccount(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			pub, err := crypto.DecodePublicKey(acct.PublicKey)
			if err != nil {
				return err
			}
			fmt.Printf("Account %s created\nFingerprint: %s\n", acct.UserID, crypto.Fingerprint(pub))
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "display name published with your key")
	return cmd
}

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print your public key fingerprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			acct, err := wire.Account()
			if err != nil {
				return err
			}
			pub, err := crypto.DecodePublicKey(acct.PublicKey)
			if err != nil {
				return err
			}
			fmt.Printf("Fingerprint: %s\n", crypto.Fingerprint(pub))
			return nil
		},
	}
}

func unlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Unlock your private key for this session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				return fmt.Errorf("password required (-p)")
			}
			if _, err := wire.Unlock(cmd.Context(), password); err != nil {
				return err
			}
			fmt.Printf("unlocked (password retained for %s in %s store)\n",
				wire.Config.Session.PasswordTTL, wire.Config.Session.Store)
			return nil
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget cached keys and the retained password",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("logged out")
			return nil
		},
	}
}
