package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/warp/archive-engine/workbook"
)

var templateCmd = &cobra.Command{
	Use:   "template FILE",
	Short: "Write an empty upload template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := workbook.EncodeXLSX(&workbook.Workbook{
			Sheets: []workbook.Sheet{{
				Name: "Agreements",
				Rows: [][]string{{"Agreement No", "Category", "Box"}},
			}},
		})
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[0], data, 0o644); err != nil {
			return err
		}
		fmt.Println("wrote", args[0])
		return nil
	},
}
