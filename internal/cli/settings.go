package cli

import (
	"github.com/spf13/cobra"

	"github.com/malganis13/g2a-automation/internal/app"
)

var (
	setEnabled    bool
	setUndercut   string
	setMinPrice   string
	setMaxPrice   string
	setDailyLimit int
	setCycleLimit int
	setProtect    bool
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect and change global repricing settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the settings in effect",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ShowSettings(cmd.Context())
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update global settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		var u app.SettingsUpdate
		flags := cmd.Flags()

		if flags.Changed("enabled") {
			u.Enabled = &setEnabled
		}
		if flags.Changed("undercut") {
			v, err := parseDecimalFlag("undercut", setUndercut)
			if err != nil {
				return err
			}
			u.UndercutAmount = &v
		}
		if flags.Changed("min-price") {
			v, err := parseDecimalFlag("min-price", setMinPrice)
			if err != nil {
				return err
			}
			u.MinPrice = &v
		}
		if flags.Changed("max-price") {
			v, err := parseDecimalFlag("max-price", setMaxPrice)
			if err != nil {
				return err
			}
			u.MaxPrice = &v
		}
		if flags.Changed("daily-limit") {
			u.DailyLimit = &setDailyLimit
		}
		if flags.Changed("cycle-limit") {
			u.CycleLimit = &setCycleLimit
		}
		if flags.Changed("protect-single-seller") {
			u.ProtectSingleSeller = &setProtect
		}

		return getApp().UpdateSettings(cmd.Context(), u)
	},
}

var settingsIncludeCmd = &cobra.Command{
	Use:   "include <product_id>",
	Short: "Allow auto-pricing for a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ToggleProduct(cmd.Context(), args[0], true)
	},
}

var settingsExcludeCmd = &cobra.Command{
	Use:   "exclude <product_id>",
	Short: "Stop auto-pricing a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ToggleProduct(cmd.Context(), args[0], false)
	},
}

func init() {
	flags := settingsSetCmd.Flags()
	flags.BoolVar(&setEnabled, "enabled", false, "Master switch for auto-pricing")
	flags.StringVar(&setUndercut, "undercut", "", "Amount to undercut the cheapest competitor by")
	flags.StringVar(&setMinPrice, "min-price", "", "Global price floor")
	flags.StringVar(&setMaxPrice, "max-price", "", "Global price ceiling")
	flags.IntVar(&setDailyLimit, "daily-limit", 0, "Maximum price changes per day")
	flags.IntVar(&setCycleLimit, "cycle-limit", 0, "Maximum price changes per cycle (0 = no cap)")
	flags.BoolVar(&setProtect, "protect-single-seller", true, "Leave products alone when no other seller lists them")

	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd, settingsIncludeCmd, settingsExcludeCmd)
}
