package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/malganis13/g2a-automation/internal/pricing"
)

var (
	policyFloor         string
	policyUndercut      string
	policyAuto          bool
	policyClearFloor    bool
	policyClearUndercut bool
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage per-product pricing overrides",
}

var policyGetCmd = &cobra.Command{
	Use:   "get <product_id>",
	Short: "Show the effective policy of a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ShowPolicy(cmd.Context(), args[0])
	},
}

var policySetCmd = &cobra.Command{
	Use:   "set <product_id>",
	Short: "Create or update a product override",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var u pricing.OverrideUpdate
		flags := cmd.Flags()

		if flags.Changed("floor") {
			v, err := parseDecimalFlag("floor", policyFloor)
			if err != nil {
				return err
			}
			u.FloorPrice = &v
		}
		if flags.Changed("undercut") {
			v, err := parseDecimalFlag("undercut", policyUndercut)
			if err != nil {
				return err
			}
			u.UndercutAmount = &v
		}
		if flags.Changed("auto") {
			u.AutoEnabled = &policyAuto
		}
		u.ClearFloor = policyClearFloor
		u.ClearUndercut = policyClearUndercut

		return getApp().SetPolicy(cmd.Context(), args[0], u)
	},
}

var policyDeleteCmd = &cobra.Command{
	Use:   "delete <product_id>",
	Short: "Remove a product override",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().DeletePolicy(cmd.Context(), args[0])
	},
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored product overrides",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListPolicies(cmd.Context())
	},
}

func parseDecimalFlag(name, raw string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid --%s value %q: %w", name, raw, err)
	}
	return v, nil
}

func init() {
	policySetCmd.Flags().StringVar(&policyFloor, "floor", "", "Individual minimum price")
	policySetCmd.Flags().StringVar(&policyUndercut, "undercut", "", "Individual undercut amount")
	policySetCmd.Flags().BoolVar(&policyAuto, "auto", true, "Enable auto-pricing for the product")
	policySetCmd.Flags().BoolVar(&policyClearFloor, "clear-floor", false, "Fall back to the global minimum price")
	policySetCmd.Flags().BoolVar(&policyClearUndercut, "clear-undercut", false, "Fall back to the global undercut amount")

	policyCmd.AddCommand(policyGetCmd, policySetCmd, policyDeleteCmd, policyListCmd)
}
