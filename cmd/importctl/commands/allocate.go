package commands

import (
	"encoding/json"
	"os"

	"github.com/contact-dispatch/internal/service"

	"github.com/spf13/cobra"
)

func allocateCmd(st *state) *cobra.Command {
	var (
		deviceID      string
		count         int
		industry      string
		skipIfPending bool
	)
	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Reserve numbers for a device, package a VCF batch and open a pending session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count <= 0 {
				count = st.cfg.Import.DefaultAllocationCount
			}
			result, err := st.container.AllocationService.AllocateToDevice(cmd.Context(), service.AllocateInput{
				DeviceID:      deviceID,
				Count:         count,
				Industry:      industry,
				SkipIfPending: skipIfPending,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVarP(&deviceID, "device", "d", "", "target device id")
	cmd.Flags().IntVarP(&count, "count", "n", 0, "numbers to allocate (default from config)")
	cmd.Flags().StringVar(&industry, "industry", "", "only allocate numbers with this industry tag")
	cmd.Flags().BoolVar(&skipIfPending, "skip-if-pending", false, "skip when the device still has a pending batch")
	_ = cmd.MarkFlagRequired("device")
	return cmd
}

// executionPlan 执行计划文件
type executionPlan struct {
	Assignments []service.Assignment `json:"assignments"`
}

func executeCmd(st *state) *cobra.Command {
	var (
		planPath    string
		scriptKey   string
		strict      bool
		consumption string
	)
	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Import assigned ranges into devices one after another",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(planPath)
			if err != nil {
				return err
			}
			var plan executionPlan
			if err := json.Unmarshal(raw, &plan); err != nil {
				return err
			}
			opts := st.container.ExecuteOptions()
			if scriptKey != "" {
				opts.ScriptKey = scriptKey
			}
			if cmd.Flags().Changed("strict") {
				opts.Strict = strict
			}
			if consumption != "" {
				opts.Consumption = consumption
			}
			result, err := st.container.AllocationService.ExecuteAssignments(cmd.Context(), plan.Assignments, opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVarP(&planPath, "plan", "f", "", "JSON file with an assignments array")
	cmd.Flags().StringVar(&scriptKey, "script", "", "import script key (auto, huawei_enhanced)")
	cmd.Flags().BoolVar(&strict, "strict", false, "downgrade reported success when the contact count does not grow")
	cmd.Flags().StringVar(&consumption, "consumption", "", "consumption strategy (per_range, merged)")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}
