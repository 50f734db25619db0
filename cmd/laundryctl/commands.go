package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"laundrypos/backend/internal/domain"
	"laundrypos/backend/internal/pricing"
	"laundrypos/backend/internal/reconcile"
	pgstore "laundrypos/backend/internal/store/postgres"
)

// newRootCommand creates the root CLI command with all subcommands registered.
func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "laundryctl",
		Short: "Offline tools for the laundry back office",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newSummarizeCommand())
	rootCmd.AddCommand(newSchemaCommand())
	rootCmd.AddCommand(newPricingCommand())

	return rootCmd
}

type summaryOutput struct {
	ReceiptNumber string                `json:"receipt_number"`
	Status        string                `json:"status"`
	Overdue       bool                  `json:"overdue"`
	ItemCount     int                   `json:"item_count"`
	Summary       domain.ReceiptSummary `json:"summary"`
	Payment       *paymentOutput        `json:"payment,omitempty"`
}

type paymentOutput struct {
	Mode        string                 `json:"mode"`
	Applied     bool                   `json:"applied"`
	Message     string                 `json:"message,omitempty"`
	Settled     decimal.Decimal        `json:"settled"`
	Allocations []reconcile.Allocation `json:"allocations"`
	After       domain.ReceiptSummary  `json:"after"`
}

func newSummarizeCommand() *cobra.Command {
	var file string
	var pay string
	var mode string

	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Summarize a receipt from a JSON dump of its items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := readItems(file)
			if err != nil {
				return err
			}
			return runSummarize(cmd.OutOrStdout(), items, pay, mode, time.Now().UTC())
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "JSON file with the receipt's items (required)")
	_ = cmd.MarkFlagRequired("file")
	cmd.Flags().StringVar(&pay, "pay", "", "amount to apply to the receipt")
	cmd.Flags().StringVar(&mode, "mode", domain.PaymentModeStandalone, "payment mode: standalone, collection or deposit")

	return cmd
}

// readItems accepts either a bare array of items or an object with an
// "items" key, which is what the receipt endpoint returns.
func readItems(path string) ([]domain.OrderItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading items: %w", err)
	}

	var items []domain.OrderItem
	if strings.HasPrefix(strings.TrimSpace(string(data)), "[") {
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("parsing items: %w", err)
		}
	} else {
		var wrapped struct {
			Items []domain.OrderItem `json:"items"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("parsing items: %w", err)
		}
		items = wrapped.Items
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no items in %s", path)
	}
	return items, nil
}

func runSummarize(out io.Writer, items []domain.OrderItem, pay string, mode string, now time.Time) error {
	receipt := reconcile.BuildReceipt(items, now)
	result := summaryOutput{
		ReceiptNumber: receipt.ReceiptNumber,
		Status:        receipt.Status,
		Overdue:       receipt.Overdue,
		ItemCount:     receipt.ItemCount,
		Summary:       receipt.Summary,
	}

	if strings.TrimSpace(pay) != "" {
		amount, err := decimal.NewFromString(strings.TrimSpace(pay))
		if err != nil {
			return fmt.Errorf("invalid --pay amount %q: %w", pay, err)
		}
		switch mode {
		case domain.PaymentModeStandalone, domain.PaymentModeCollection, domain.PaymentModeDeposit:
		default:
			return fmt.Errorf("unknown payment mode %q", mode)
		}
		app, err := reconcile.ApplyPayment(items, mode, amount)
		if err != nil {
			return err
		}
		result.Payment = &paymentOutput{
			Mode:        mode,
			Applied:     app.Applied,
			Message:     app.Message,
			Settled:     app.Settled,
			Allocations: app.Allocations,
			After:       app.After,
		}
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the Postgres schema applied at startup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := io.WriteString(cmd.OutOrStdout(), pgstore.Schema)
			return err
		},
	}
}

func newPricingCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "pricing",
		Short: "Validate a pricing file and print the effective tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pricing.LoadFile(path)
			if err != nil {
				return err
			}
			encoder := yaml.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent(2)
			if err := encoder.Encode(cfg); err != nil {
				return fmt.Errorf("encoding pricing: %w", err)
			}
			return encoder.Close()
		},
	}

	cmd.Flags().StringVar(&path, "config", "", "YAML pricing file; defaults are printed when empty")

	return cmd
}
