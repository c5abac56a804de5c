package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/toyz/rewire/internal/demo"
	"github.com/toyz/rewire/pkg/rewire"
)

type routeView struct {
	Verb      string   `yaml:"verb"`
	Path      string   `yaml:"path"`
	Response  string   `yaml:"response"`
	Roles     []string `yaml:"roles,omitempty"`
	View      string   `yaml:"view,omitempty"`
	Component string   `yaml:"component,omitempty"`
	Operation string   `yaml:"operation,omitempty"`
}

func newRoutesCmd(root *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "routes [key=value...]",
		Short: "Print the routes the application registers",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := root.newRuntime(zap.NewNop(), prometheus.NewRegistry())
			defer rt.Jobs().Reset()
			defer rt.Config().Close()

			if err := rt.App().Run(context.Background(), demo.Main, args...); err != nil {
				return runArgs(cmd, err)
			}
			return printRoutes(cmd.OutOrStdout(), format, rt.Setups())
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or yaml")
	return cmd
}

func printRoutes(w io.Writer, format string, setups []*rewire.Setup) error {
	views := make(map[string][]routeView)
	for _, s := range setups {
		for _, r := range s.Routes().All() {
			views[s.Name()] = append(views[s.Name()], routeView{
				Verb:      r.Verb,
				Path:      r.Path,
				Response:  r.Response.String(),
				Roles:     r.Roles,
				View:      r.View,
				Component: r.Component,
				Operation: r.Operation,
			})
		}
	}

	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(views); err != nil {
			return err
		}
		return enc.Close()
	case "table":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SETUP\tVERB\tPATH\tRESPONSE\tROLES\tTARGET")
		for _, s := range setups {
			for _, r := range views[s.Name()] {
				target := "-"
				if r.Component != "" {
					target = r.Component + "." + r.Operation
				}
				roles := strings.Join(r.Roles, ",")
				if roles == "" {
					roles = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", s.Name(), r.Verb, r.Path, r.Response, roles, target)
			}
		}
		return tw.Flush()
	}
	return fmt.Errorf("unknown format %q, expected table or yaml", format)
}
