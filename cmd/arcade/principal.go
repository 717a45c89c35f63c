package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/IBM/arcade/pkg/authz"
	"github.com/IBM/arcade/pkg/store"
)

type principalView struct {
	ID     uint     `json:"id"`
	Name   string   `json:"name"`
	Admin  bool     `json:"admin"`
	Grants []string `json:"grants"`
}

func newPrincipalCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "principal",
		Short: "Manage reader principals and their grants",
	}
	cmd.AddCommand(newPrincipalCreateCmd(a))
	cmd.AddCommand(newPrincipalGrantCmd(a))
	return cmd
}

func newPrincipalCreateCmd(a *app) *cobra.Command {
	var admin bool

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a principal",
		Long: `Create a principal. It is granted every data source that is public at
the time of creation; sources made public later must be granted explicitly.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer h.Close()

			p, err := authz.CreatePrincipal(ctx, h, args[0], admin)
			if err != nil {
				return err
			}
			return printPrincipal(a, cmd, h, p)
		},
	}
	cmd.Flags().BoolVar(&admin, "admin", false, "Allow the principal to use admin routes")
	return cmd
}

func newPrincipalGrantCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "grant NAME SOURCE",
		Short: "Grant a principal read access to a data source",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer h.Close()

			p, err := authz.PrincipalByName(ctx, h, args[0])
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("principal %q: %w", args[0], store.ErrNotFound)
			}
			if err := authz.Grant(ctx, h, p, args[1]); err != nil {
				return err
			}
			return printPrincipal(a, cmd, h, p)
		},
	}
}

func printPrincipal(a *app, cmd *cobra.Command, s store.EntityStore, p *store.Principal) error {
	var grants []store.DataSource
	if err := s.Traverse(cmd.Context(), p, store.RelationGrants, &grants, store.QueryOptions{OrderBy: "name"}); err != nil {
		return err
	}
	view := principalView{ID: p.ID, Name: p.Name, Admin: p.Admin, Grants: make([]string, len(grants))}
	rows := make([][]string, 0, len(grants)+1)
	for i, g := range grants {
		view.Grants[i] = g.Name
		rows = append(rows, []string{p.Name, strconv.FormatBool(p.Admin), g.Name})
	}
	if len(grants) == 0 {
		rows = append(rows, []string{p.Name, strconv.FormatBool(p.Admin), ""})
	}
	return a.print(cmd.OutOrStdout(), view, []string{"Principal", "Admin", "Grant"}, rows)
}
