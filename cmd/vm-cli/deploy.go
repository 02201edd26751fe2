package main

import (
	"fmt"

	"github.com/govm-net/hellokv/contracts/hello"
	"github.com/govm-net/hellokv/core"
	"github.com/spf13/cobra"
)

var (
	deployAccount string
	deployKind    string
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy a contract on an account",
	Long: `Deploy a registered contract kind on an account.
Example: vm-cli deploy -a hello.alice.near`,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, closer, err := openEngine()
		if err != nil {
			return err
		}
		defer closer()

		d, err := engine.Deploy(core.AccountID(deployAccount), deployKind)
		if err != nil {
			return fmt.Errorf("failed to deploy contract: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deployed %s on %s\nABI hash: %s\n", d.Kind, d.Account, d.ABIHash)
		return nil
	},
}

func init() {
	deployCmd.Flags().StringVarP(&deployAccount, "account", "a", "", "contract account")
	deployCmd.Flags().StringVarP(&deployKind, "kind", "k", hello.ContractName, "contract kind")
	deployCmd.MarkFlagRequired("account")
}
