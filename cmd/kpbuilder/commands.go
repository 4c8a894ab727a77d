package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"kpbuilder/api/internal/export"
	"kpbuilder/api/internal/pricing"
	"kpbuilder/api/internal/proposal"
	"kpbuilder/api/internal/render"
	"kpbuilder/api/internal/templates"
	"kpbuilder/api/internal/util"
)

type documentFlags struct {
	workspace string
	client    string
	output    string
}

func (f *documentFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.workspace, "workspace", "w", "", "Workspace letterhead YAML file")
	cmd.Flags().StringVarP(&f.client, "client", "c", "", "Client JSON file")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Output file (default stdout)")
}

func (f *documentFlags) renderHTML(path string) (string, error) {
	p, err := readProposal(path)
	if err != nil {
		return "", err
	}
	ws, err := readWorkspace(f.workspace)
	if err != nil {
		return "", err
	}
	client, err := readClient(f.client)
	if err != nil {
		return "", err
	}
	return render.Render(p, ws, client), nil
}

func renderCmd() *cobra.Command {
	var flags documentFlags
	cmd := &cobra.Command{
		Use:   "render <proposal.json>",
		Short: "Render a proposal to HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			html, err := flags.renderHTML(args[0])
			if err != nil {
				return err
			}
			return writeOutput(flags.output, []byte(html), cmd.OutOrStdout())
		},
	}
	flags.register(cmd)
	return cmd
}

func pdfCmd() *cobra.Command {
	var (
		flags      documentFlags
		timeout    time.Duration
		chromePath string
	)
	cmd := &cobra.Command{
		Use:   "pdf <proposal.json>",
		Short: "Print a proposal to PDF with headless Chrome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.output == "" || flags.output == "-" {
				return errors.New("pdf needs an output file, pass -o")
			}
			html, err := flags.renderHTML(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			data, err := export.NewChromePDF(timeout, chromePath).RenderPDF(ctx, html)
			if err != nil {
				return err
			}
			if err := writeOutput(flags.output, data, cmd.OutOrStdout()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d bytes)\n", flags.output, len(data))
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "Chrome print timeout")
	cmd.Flags().StringVar(&chromePath, "chrome", os.Getenv("CHROME_PATH"), "Chrome or Chromium binary")
	return cmd
}

func totalsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "totals <proposal.json>",
		Short: "Print subtotal, VAT and total of a proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := readProposal(args[0])
			if err != nil {
				return err
			}
			t := pricing.Compute(p)
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, t)
			}
			fmt.Fprintf(out, "Сумма без НДС: %s\n", pricing.FormatMoney(t.Subtotal, t.Currency))
			if t.IncludeVAT {
				fmt.Fprintf(out, "НДС %s%%: %s\n", pricing.FormatQty(t.VATRate), pricing.FormatMoney(t.VAT, t.Currency))
			}
			fmt.Fprintf(out, "Итого: %s\n", pricing.FormatMoney(t.Total, t.Currency))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw totals as JSON")
	return cmd
}

func templateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Extract and apply proposal templates",
	}
	cmd.AddCommand(templateExtractCmd(), templateApplyCmd())
	return cmd
}

func templateExtractCmd() *cobra.Command {
	var name, description, category string
	cmd := &cobra.Command{
		Use:   "extract <proposal.json>",
		Short: "Print the template defaults and sections of a proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := readProposal(args[0])
			if err != nil {
				return err
			}
			t := templates.FromProposal(p, name, description, category)
			return writeJSON(cmd.OutOrStdout(), templateFile{
				Name:        t.Name,
				Description: t.Description,
				Category:    t.Category,
				Defaults:    t.Defaults,
				Sections:    t.Sections,
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Template name")
	cmd.Flags().StringVar(&description, "description", "", "Template description")
	cmd.Flags().StringVar(&category, "category", "", "Template category")
	return cmd
}

func templateApplyCmd() *cobra.Command {
	var id, workspaceID, title string
	cmd := &cobra.Command{
		Use:   "apply <template.json>",
		Short: "Instantiate a template into a new proposal with fresh ids",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := readTemplate(args[0])
			if err != nil {
				return err
			}
			if id == "" {
				id = util.NewID("kp")
			}
			target := proposal.Proposal{
				ID:          id,
				WorkspaceID: workspaceID,
				Title:       title,
				Status:      proposal.StatusDraft,
			}
			p, fellBack := templates.Apply(t, target, util.NewID)
			if fellBack {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: template active variant not found, using the first variant")
			}
			return writeJSON(cmd.OutOrStdout(), p)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Proposal id (generated when empty)")
	cmd.Flags().StringVar(&workspaceID, "workspace-id", "", "Workspace id of the new proposal")
	cmd.Flags().StringVar(&title, "title", "", "Title of the new proposal")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
