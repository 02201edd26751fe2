package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/govm-net/hellokv/core"
	"github.com/spf13/cobra"
)

var abiCmd = &cobra.Command{
	Use:   "abi",
	Short: "Print the ABI of a deployed contract",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, closer, err := openEngine()
		if err != nil {
			return err
		}
		defer closer()

		a, err := engine.ABI(core.AccountID(contractAccount))
		if err != nil {
			return err
		}
		data, err := a.JSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print the committed log lines of a contract",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, closer, err := openEngine()
		if err != nil {
			return err
		}
		defer closer()

		entries, err := engine.Events(core.AccountID(contractAccount))
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "HEIGHT\tRECEIPT\tLINE")
		for _, e := range entries {
			fmt.Fprintf(w, "%d\t%s\t%s\n", e.BlockHeight, e.ReceiptID, e.Line)
		}
		return w.Flush()
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List deployed contracts",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, closer, err := openEngine()
		if err != nil {
			return err
		}
		defer closer()

		list, err := engine.Deployments()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ACCOUNT\tKIND\tDEPLOYED")
		for _, d := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\n", d.Account, d.Kind, d.DeployedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

func init() {
	for _, c := range []*cobra.Command{abiCmd, logsCmd} {
		c.Flags().StringVarP(&contractAccount, "account", "a", "", "contract account")
		c.MarkFlagRequired("account")
	}
}
