package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage the local keystore",
}

var walletAccountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List the accounts the configured key manager can sign for",
	RunE: func(cmd *cobra.Command, args []string) error {
		km, err := newKeyManager()
		if err != nil {
			return err
		}
		for _, a := range km.GetAccounts() {
			fmt.Println(a.Hex())
		}
		return nil
	},
}

var walletNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a key in the local keystore",
	RunE: func(cmd *cobra.Command, args []string) error {
		km, err := newLocalKeyManager()
		if err != nil {
			return err
		}
		addr, err := km.CreateKey()
		if err != nil {
			return err
		}
		fmt.Println(addr.Hex())
		return nil
	},
}

var walletImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a hex private key into the local keystore",
	RunE: func(cmd *cobra.Command, args []string) error {
		km, err := newLocalKeyManager()
		if err != nil {
			return err
		}
		hexKey, err := readSecret("Private key (hex): ")
		if err != nil {
			return err
		}
		addr, err := km.ImportKey(hexKey)
		if err != nil {
			return err
		}
		fmt.Println(addr.Hex())
		return nil
	},
}

func init() {
	walletCmd.AddCommand(walletAccountsCmd, walletNewCmd, walletImportCmd)
	rootCmd.AddCommand(walletCmd)
}
