package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	opcua "github.com/edgeo-scada/opcua-typesys"
	"github.com/edgeo-scada/opcua-typesys/dynamic"
	"github.com/edgeo-scada/opcua-typesys/typetree"
)

func newTypesCmd(g *globals) *cobra.Command {
	var (
		root        string
		definitions bool
	)
	cmd := &cobra.Command{
		Use:   "types",
		Short: "Discover and print the data type hierarchy",
		Long: `Discover the data type hierarchy of the snapshot address space through
Browse and Read requests, register a codec for every structure and print
the tree.

Examples:
  edgeo-opcua types --snapshot plant.yaml
  edgeo-opcua types --snapshot plant.yaml --root i=22 --definitions`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := g.openSpace()
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := g.context()
			defer cancel()
			tree, err := typetree.Discover(ctx, client,
				typetree.WithLogger(g.logger),
				typetree.WithMaxConcurrentRequests(g.cfg.Discovery.MaxConcurrentRequests),
			)
			if err != nil {
				return err
			}
			m := dynamic.NewManager(dynamic.WithLogger(g.logger))
			registered := dynamic.RegisterCodecs(tree, m, nil)

			start := tree.Root()
			if root != "" {
				id, err := opcua.ParseNodeID(root)
				if err != nil {
					return fmt.Errorf("invalid node ID %q: %w", root, err)
				}
				n, ok := tree.Node(id)
				if !ok {
					return opcua.NewStatusError(opcua.StatusBadDataTypeIdUnknown, "data type %s not in tree", id)
				}
				start = n
			}

			out := cmd.OutOrStdout()
			printTree(out, tree, m, start, definitions)
			fmt.Fprintf(out, "\n%d data types, %d codecs registered\n", tree.Len(), registered)
			return nil
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "Print only the subtree of this data type")
	cmd.Flags().BoolVarP(&definitions, "definitions", "d", false, "Print structure fields and enumeration values")
	return cmd
}

func printTree(w io.Writer, tree *typetree.Tree, m *dynamic.Manager, start *typetree.Node, definitions bool) {
	base := start.Depth()
	start.Traverse(func(n *typetree.Node) bool {
		indent := strings.Repeat("  ", n.Depth()-base)
		dt := n.DataType()

		var tags []string
		if dt.IsAbstract() {
			tags = append(tags, "abstract")
		}
		if _, ok := m.CodecForType(dt.NodeID()); ok {
			tags = append(tags, "codec")
		}
		if id, ok := dt.BinaryEncodingID(); ok {
			tags = append(tags, "binary="+id.String())
		}
		line := fmt.Sprintf("%s%s (%s)", indent, dt.BrowseName(), dt.NodeID())
		if len(tags) > 0 {
			line += " [" + strings.Join(tags, ", ") + "]"
		}
		fmt.Fprintln(w, line)

		if !definitions {
			return true
		}
		if sd, ok := dt.StructureDefinition(); ok {
			for _, f := range sd.Fields {
				name := f.DataType.String()
				if ft, ok := tree.Get(f.DataType); ok {
					name = ft.BrowseName().Name
				}
				if f.ValueRank >= opcua.ValueRankOneDimension {
					name += strings.Repeat("[]", int(f.ValueRank))
				}
				if f.IsOptional {
					name += " (optional)"
				}
				fmt.Fprintf(w, "%s  - %s: %s\n", indent, f.Name, name)
			}
		}
		if ed, ok := dt.EnumDefinition(); ok {
			for _, f := range ed.Fields {
				fmt.Fprintf(w, "%s  - %s = %d\n", indent, f.Name, f.Value)
			}
		}
		return true
	})
}
