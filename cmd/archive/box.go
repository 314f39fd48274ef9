package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/warp/archive-engine/archive"
)

var boxCmd = &cobra.Command{
	Use:   "box",
	Short: "Inspect and roll over storage boxes",
}

var boxGetCmd = &cobra.Command{
	Use:   "get TYPE",
	Short: "Show the open box for a type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		box, err := appFrom(cmd.Context()).engine.GetActiveBox(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printBox(box)
		return nil
	},
}

var flagNextDokID string

var boxNextCmd = &cobra.Command{
	Use:   "next TYPE",
	Short: "Close the open box for a type and open the next one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		box, err := appFrom(cmd.Context()).engine.AllocateNextBox(cmd.Context(), args[0], flagNextDokID)
		if err != nil {
			return err
		}
		fmt.Printf("%s ", color.New(color.FgGreen).Sprint("CREATE"))
		printBox(box)
		return nil
	},
}

func init() {
	boxNextCmd.Flags().StringVar(&flagNextDokID, "dok-id", "", "document system id printed on the new box (required)")
	_ = boxNextCmd.MarkFlagRequired("dok-id")

	boxCmd.AddCommand(boxGetCmd)
	boxCmd.AddCommand(boxNextCmd)
}

func printBox(b archive.ActiveBox) {
	fmt.Printf("%s  seq %d  dok %s  items %d\n",
		color.New(color.Bold).Sprint(b.Name), b.Sequence, b.DokID, b.ItemCount)
}
