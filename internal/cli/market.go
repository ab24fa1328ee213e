package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	offerPrice    string
	offerQuantity int
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Show today's price change budget",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Budget(cmd.Context())
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <product_id>",
	Short: "Compare the own offer with the cheapest listing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Inspect(cmd.Context(), args[0])
	},
}

var offerCmd = &cobra.Command{
	Use:   "offer",
	Short: "Manage marketplace offers",
}

var offerCreateCmd = &cobra.Command{
	Use:   "create <product_id>",
	Short: "Create a dropshipping offer, or add one unit to an existing one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if offerPrice == "" {
			return errors.New("--price is required")
		}
		price, err := parseDecimalFlag("price", offerPrice)
		if err != nil {
			return err
		}
		return getApp().CreateOffer(cmd.Context(), args[0], price, offerQuantity)
	},
}

func init() {
	offerCreateCmd.Flags().StringVar(&offerPrice, "price", "", "Retail price of the new offer")
	offerCreateCmd.Flags().IntVar(&offerQuantity, "quantity", 1, "Initial stock")
	offerCmd.AddCommand(offerCreateCmd)
}
