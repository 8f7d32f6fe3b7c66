package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jrzesz33/language_bus/internal/gateway"
)

func newTemplateCmd() *cobra.Command {
	var variant, bus string

	cmd := &cobra.Command{
		Use:   "template",
		Short: "Print the VTL request template of a gateway variant",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := gateway.ParseVariant(variant)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v.RequestTemplate(bus))
			return nil
		},
	}

	cmd.Flags().StringVar(&variant, "variant", gateway.VariantLanguage.String(), "Gateway variant: language or assembly")
	cmd.Flags().StringVar(&bus, "bus", "", "Event bus name (required)")
	_ = cmd.MarkFlagRequired("bus")

	return cmd
}
