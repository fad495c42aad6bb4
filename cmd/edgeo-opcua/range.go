package main

import (
	"fmt"

	"github.com/spf13/cobra"

	opcua "github.com/edgeo-scada/opcua-typesys"
	"github.com/edgeo-scada/opcua-typesys/indexrange"
	"github.com/edgeo-scada/opcua-typesys/memspace"
)

type rangeFlags struct {
	node      string
	typeName  string
	value     string
	update    string
	rangeText string
}

func newRangeCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "range",
		Short: "Read or write array values through index ranges",
	}
	cmd.AddCommand(newRangeReadCmd(g))
	cmd.AddCommand(newRangeWriteCmd(g))
	return cmd
}

func (f *rangeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.node, "node", "n", "", "Variable node ID in the snapshot address space")
	cmd.Flags().StringVarP(&f.typeName, "type", "T", "", "Built-in type of --value (Boolean, Int32, Double, String, ...)")
	cmd.Flags().StringVarP(&f.value, "value", "V", "", "Value as YAML, e.g. \"[[1, 2], [3, 4]]\"")
	cmd.Flags().StringVarP(&f.rangeText, "range", "r", "", "Index range, e.g. \"1:3\" or \"0,1:2\"")
	cmd.MarkFlagsMutuallyExclusive("node", "value")
	cmd.MarkFlagsRequiredTogether("type", "value")
}

func newRangeReadCmd(g *globals) *cobra.Command {
	f := &rangeFlags{}
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read the part of a value selected by an index range",
		Long: `Read the part of a value selected by an index range. The value is either
given inline with --type and --value or read from a variable of the
snapshot address space with --node.

Examples:
  edgeo-opcua range read -T Int32 -V "[[1, 2, 3], [4, 5, 6]]" -r 1,0:1
  edgeo-opcua range read -T String -V "[pump, valve]" -r 1,1:3
  edgeo-opcua range read --snapshot plant.yaml -n "ns=1;s=Temperatures" -r 0:1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRangeRead(cmd, g, f)
		},
	}
	f.register(cmd)
	return cmd
}

func runRangeRead(cmd *cobra.Command, g *globals, f *rangeFlags) error {
	out := cmd.OutOrStdout()

	if f.node != "" {
		nodeID, err := opcua.ParseNodeID(f.node)
		if err != nil {
			return fmt.Errorf("invalid node ID %q: %w", f.node, err)
		}
		_, client, err := g.openSpace()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := g.context()
		defer cancel()
		results, err := client.Read(ctx, []opcua.ReadValueID{
			{NodeID: nodeID, AttributeID: opcua.AttributeValue, IndexRange: f.rangeText},
		})
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}
		printDataValue(out, "Node: "+f.node, results[0])
		return nil
	}

	value, r, err := f.inline()
	if err != nil {
		return err
	}
	result, err := indexrange.ReadVariant(value, r)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Range: %s\n", r)
	printVariant(out, result)
	return nil
}

func newRangeWriteCmd(g *globals) *cobra.Command {
	f := &rangeFlags{}
	cmd := &cobra.Command{
		Use:   "write",
		Short: "Replace the part of a value selected by an index range",
		Long: `Replace the part of a value selected by an index range with --update and
print the resulting value. Every bound of the range must lie inside the
current value and the update must have the shape of the range.

Examples:
  edgeo-opcua range write -T Double -V "[1, 2, 3]" -r 1:2 -u "[8, 9]"
  edgeo-opcua range write --snapshot plant.yaml -n "ns=1;s=Temperatures" -r 1 -u "[99]"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRangeWrite(cmd, g, f)
		},
	}
	f.register(cmd)
	cmd.Flags().StringVarP(&f.update, "update", "u", "", "Replacement value as YAML")
	_ = cmd.MarkFlagRequired("update")
	_ = cmd.MarkFlagRequired("range")
	return cmd
}

func runRangeWrite(cmd *cobra.Command, g *globals, f *rangeFlags) error {
	out := cmd.OutOrStdout()

	if f.node != "" {
		nodeID, err := opcua.ParseNodeID(f.node)
		if err != nil {
			return fmt.Errorf("invalid node ID %q: %w", f.node, err)
		}
		_, client, err := g.openSpace()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := g.context()
		defer cancel()
		current, err := client.ReadValue(ctx, nodeID)
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}
		if current.StatusCode.IsBad() || current.Value == nil {
			return opcua.NewOPCUAError(opcua.ServiceRead, current.StatusCode, f.node)
		}
		update, err := memspace.ParseValue(current.Value.Type, f.update)
		if err != nil {
			return err
		}
		if err := client.WriteValue(ctx, nodeID, f.rangeText, update); err != nil {
			return fmt.Errorf("write failed: %w", err)
		}
		written, err := client.ReadValue(ctx, nodeID)
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}
		printDataValue(out, "Node: "+f.node, *written)
		return nil
	}

	value, r, err := f.inline()
	if err != nil {
		return err
	}
	update, err := memspace.ParseValue(value.Type, f.update)
	if err != nil {
		return err
	}
	result, err := indexrange.WriteVariant(value, update, r)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Range: %s\n", r)
	printVariant(out, result)
	return nil
}

// inline parses --type, --value and --range.
func (f *rangeFlags) inline() (*opcua.Variant, *indexrange.IndexRange, error) {
	if f.typeName == "" {
		return nil, nil, fmt.Errorf("either --node or --type and --value are required")
	}
	t, err := parseTypeName(f.typeName)
	if err != nil {
		return nil, nil, err
	}
	value, err := memspace.ParseValue(t, f.value)
	if err != nil {
		return nil, nil, err
	}
	r, err := indexrange.Parse(f.rangeText)
	if err != nil {
		return nil, nil, err
	}
	return value, r, nil
}
