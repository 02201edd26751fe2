package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/govm-net/hellokv/core"
	"github.com/govm-net/hellokv/types"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
)

var (
	contractAccount string
	methodName      string
	argsJSON        string
	signer          string
	predecessor     string
	deposit         string
)

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Call a contract method in a new block",
	Long: `Call a contract method. Each call runs in a new block stamped with the current time.
Example: vm-cli call -a hello.alice.near -m set_data --args '{"key":"k","value":"v"}' -s alice`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCall(cmd)
	},
}

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Run a read-only contract method",
	Long: `Run a view method. Nothing is written.
Example: vm-cli view -a hello.alice.near -m get_data --args '{"key":"k"}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, closer, err := openEngine()
		if err != nil {
			return err
		}
		defer closer()

		data, err := engine.View(cmd.Context(), core.AccountID(contractAccount), methodName, rawArgs())
		if err != nil {
			return fmt.Errorf("failed to view contract: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{callCmd, viewCmd} {
		c.Flags().StringVarP(&contractAccount, "account", "a", "", "contract account")
		c.Flags().StringVarP(&methodName, "method", "m", "", "method name")
		c.Flags().StringVar(&argsJSON, "args", "", "JSON encoded arguments")
		c.MarkFlagRequired("account")
		c.MarkFlagRequired("method")
	}
	callCmd.Flags().StringVarP(&signer, "signer", "s", "", "signer account")
	callCmd.Flags().StringVarP(&predecessor, "predecessor", "p", "", "immediate caller, defaults to the signer")
	callCmd.Flags().StringVarP(&deposit, "deposit", "d", "0", "attached deposit in yoctoNEAR")
	callCmd.MarkFlagRequired("signer")
}

func rawArgs() []byte {
	if argsJSON == "" {
		return nil
	}
	return []byte(argsJSON)
}

func runCall(cmd *cobra.Command) error {
	amount, err := uint256.FromDecimal(deposit)
	if err != nil {
		return fmt.Errorf("invalid deposit %q: %w", deposit, err)
	}

	engine, closer, err := openEngine()
	if err != nil {
		return err
	}
	defer closer()

	state := engine.GetContext()
	now := uint64(time.Now().UnixNano())
	if err := engine.SetBlockInfo(state.BlockHeight()+1, now, types.Hash{}); err != nil {
		return fmt.Errorf("failed to set block info: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	result, err := engine.Execute(ctx, types.CallParams{
		Contract:    core.AccountID(contractAccount),
		Function:    methodName,
		Args:        rawArgs(),
		Signer:      core.AccountID(signer),
		Predecessor: core.AccountID(predecessor),
		Deposit:     amount,
	})
	if result != nil {
		out, merr := json.MarshalIndent(printableResult(result), "", "  ")
		if merr != nil {
			return fmt.Errorf("failed to marshal result: %w", merr)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Execution result:\n%s\n", out)
	}
	if err != nil {
		return fmt.Errorf("failed to execute contract: %w", err)
	}
	return nil
}

// printableResult keeps the returned JSON readable instead of base64
func printableResult(r *types.ExecutionResult) any {
	return struct {
		ReceiptID string          `json:"receipt_id"`
		Success   bool            `json:"success"`
		Data      json.RawMessage `json:"data,omitempty"`
		Error     string          `json:"error,omitempty"`
		Logs      []string        `json:"logs,omitempty"`
	}{r.ReceiptID, r.Success, json.RawMessage(r.Data), r.Error, r.Logs}
}
