package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"kpbuilder/api/internal/proposal"
	"kpbuilder/api/internal/templates"
)

func readProposal(path string) (proposal.Proposal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return proposal.Proposal{}, fmt.Errorf("read proposal: %w", err)
	}
	p, err := proposal.ParseProposal(data)
	if err != nil {
		return proposal.Proposal{}, fmt.Errorf("parse proposal %s: %w", path, err)
	}
	return p, nil
}

// readWorkspace loads the letterhead from a YAML file. An empty path means
// no letterhead.
func readWorkspace(path string) (*proposal.Workspace, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workspace: %w", err)
	}
	var ws proposal.Workspace
	if err := yaml.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("parse workspace %s: %w", path, err)
	}
	return &ws, nil
}

func readClient(path string) (*proposal.Client, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read client: %w", err)
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse client %s: %w", path, err)
	}
	client := proposal.ParseClient(raw)
	return &client, nil
}

// templateFile is the on-disk form of an extracted template.
type templateFile struct {
	Name        string               `json:"name,omitempty"`
	Description string               `json:"description,omitempty"`
	Category    string               `json:"category,omitempty"`
	Defaults    templates.Defaults   `json:"defaults"`
	Sections    []proposal.SectionID `json:"sections"`
}

func readTemplate(path string) (templates.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return templates.Template{}, fmt.Errorf("read template: %w", err)
	}
	var raw struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Category    string          `json:"category"`
		Defaults    json.RawMessage `json:"defaults"`
		Sections    any             `json:"sections"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return templates.Template{}, fmt.Errorf("parse template %s: %w", path, err)
	}
	if len(raw.Defaults) == 0 || string(raw.Defaults) == "null" {
		raw.Defaults = json.RawMessage(`{}`)
	}
	defaults, err := templates.ParseDefaults(raw.Defaults)
	if err != nil {
		return templates.Template{}, fmt.Errorf("parse template %s defaults: %w", path, err)
	}
	return templates.Template{
		Name:        raw.Name,
		Description: raw.Description,
		Category:    raw.Category,
		Defaults:    defaults,
		Sections:    templates.FilterSections(raw.Sections),
	}, nil
}

// writeOutput writes data to path, or to w when path is empty or "-".
func writeOutput(path string, data []byte, w io.Writer) error {
	if path == "" || path == "-" {
		_, err := w.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
