package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/warp/archive-engine/archive"
)

var (
	flagAssignBoxName string
	flagAssignBoxType string
	flagAssignDokID   string
)

var assignCmd = &cobra.Command{
	Use:   "assign NUMBER",
	Short: "File an agreement into a box",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine := appFrom(cmd.Context()).engine
		req := archive.AssignRequest{
			AgreementNumber: args[0],
			BoxName:         flagAssignBoxName,
			BoxType:         flagAssignBoxType,
			DokID:           flagAssignDokID,
		}

		// Default to the open box of the type.
		if req.BoxName == "" || req.DokID == "" {
			box, err := engine.GetActiveBox(cmd.Context(), req.BoxType)
			if err != nil {
				return err
			}
			if req.BoxName == "" {
				req.BoxName = box.Name
			}
			if req.DokID == "" {
				req.DokID = box.DokID
			}
		}

		if err := engine.AssignAgreement(cmd.Context(), req); err != nil {
			return err
		}
		fmt.Printf("%s %s -> %s\n", color.New(color.FgGreen).Sprint("ARCHIVED"), req.AgreementNumber, req.BoxName)
		return nil
	},
}

func init() {
	assignCmd.Flags().StringVar(&flagAssignBoxType, "box-type", "", "box type (required)")
	assignCmd.Flags().StringVar(&flagAssignBoxName, "box-name", "", "box name (default: open box of the type)")
	assignCmd.Flags().StringVar(&flagAssignDokID, "dok-id", "", "document system id (default: open box of the type)")
	_ = assignCmd.MarkFlagRequired("box-type")
}
