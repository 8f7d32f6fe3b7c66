package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jrzesz33/language_bus/internal/eventbus"
	"github.com/jrzesz33/language_bus/internal/gateway"
	"github.com/jrzesz33/language_bus/internal/topology"
)

func newTopologyCmd() *cobra.Command {
	var (
		variant string
		runtime string
		file    string
		bus     string
		region  string
		account string
		archive string
	)

	cmd := &cobra.Command{
		Use:   "topology",
		Short: "Validate a topology and print it as YAML",
		Long: `Topology builds the canonical topology for a variant and runtime, or loads
one from --file, checks every wiring invariant and prints it as YAML. All
violations are reported together.

Examples:
    busctl topology --variant assembly --runtime python
    busctl topology --file topology.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				topo *topology.Topology
				err  error
			)

			if file != "" {
				topo, err = topology.Load(file)
			} else {
				topo, err = buildTopology(variant, runtime, bus, eventbus.BusArn(region, account, bus), archive)
			}
			if err != nil {
				return err
			}

			if err := topo.Validate(); err != nil {
				return err
			}

			data, err := topo.Marshal()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&variant, "variant", gateway.VariantLanguage.String(), "Gateway variant: language or assembly")
	cmd.Flags().StringVar(&runtime, "runtime", topology.RuntimeGo.String(), "Function runtime: go, python or nodejs")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Load the topology from a YAML file")
	cmd.Flags().StringVar(&bus, "bus", topology.BusLogicalName, "Event bus name")
	cmd.Flags().StringVar(&region, "region", "us-east-1", "AWS region of the bus")
	cmd.Flags().StringVar(&account, "account", "000000000000", "AWS account of the bus")
	cmd.Flags().StringVar(&archive, "archive", "build/eventprocessor.zip", "Function archive for the go runtime")

	return cmd
}

func buildTopology(variant, runtime, bus, busArn, archive string) (*topology.Topology, error) {
	v, err := gateway.ParseVariant(variant)
	if err != nil {
		return nil, err
	}
	r, err := topology.ParseRuntime(runtime)
	if err != nil {
		return nil, err
	}

	return topology.New(topology.Options{
		Variant:         v,
		Runtime:         r,
		BusName:         bus,
		BusArn:          busArn,
		FunctionArchive: archive,
	})
}
