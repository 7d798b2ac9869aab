// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/a2akit/pkg/compliance"
	"github.com/kadirpekel/a2akit/pkg/config"
)

// errNotCompliant makes validate exit non-zero.
var errNotCompliant = errors.New("agent is not A2A compliant")

// ValidateCmd checks the agent card and the deployment environment.
type ValidateCmd struct {
	Agent       string `help:"Agent kind (echo, llm)." default:"llm" enum:"echo,llm"`
	Format      string `short:"f" help:"Output format: compact, verbose, json." default:"compact" enum:"compact,verbose,json"`
	PrintConfig bool   `short:"p" name:"print-config" help:"Print the expanded configuration (defaults applied, env vars resolved)."`
}

// validationReport is the json output.
type validationReport struct {
	Compliant   bool                        `json:"compliant"`
	Platform    string                      `json:"platform"`
	Card        compliance.Result           `json:"card"`
	Environment compliance.Result           `json:"environment"`
	Deployment  compliance.DeploymentConfig `json:"deployment"`
	LoadError   string                      `json:"load_error,omitempty"`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := cli.loadCardConfig(c.Agent)
	if err != nil {
		if c.Format == "json" {
			_ = writeJSON(os.Stdout, validationReport{LoadError: err.Error()})
		}
		return err
	}
	if c.PrintConfig {
		return printExpandedConfig(os.Stdout, c.Format, cfg)
	}

	detector := compliance.NewPlatformDetector()
	card := compliance.NewCard(cardOptions(cfg, os.Getenv))
	report := validationReport{
		Card:        compliance.NewValidator(detector.Detect()).Validate(card),
		Environment: detector.ValidateEnvironment(),
		Deployment:  detector.DeploymentConfig(),
	}
	report.Platform = report.Deployment.Platform
	report.Compliant = report.Card.Compliant && report.Environment.Compliant

	if err := printReport(os.Stdout, c.Format, report); err != nil {
		return err
	}
	if !report.Compliant {
		return errNotCompliant
	}
	return nil
}

func printReport(w io.Writer, format string, r validationReport) error {
	switch format {
	case "json":
		return writeJSON(w, r)
	case "verbose":
		fmt.Fprintf(w, "A2A Compliance Report\n")
		fmt.Fprintf(w, "=====================\n\n")
		fmt.Fprintf(w, "Platform:    %s (%s)\n", r.Platform, r.Deployment.Environment)
		fmt.Fprintf(w, "URL:         %s\n", r.Deployment.URL)
		fmt.Fprintf(w, "Card:        %s\n", r.Card.Summary())
		printFindings(w, "card", r.Card)
		fmt.Fprintf(w, "Environment: %d error(s), %d warning(s)\n", len(r.Environment.Errors), len(r.Environment.Warnings))
		printFindings(w, "environment", r.Environment)
	default:
		fmt.Fprintf(w, "%s\n", r.Card.Summary())
		for _, e := range append(r.Card.Errors, r.Environment.Errors...) {
			fmt.Fprintf(w, "error: %s\n", e)
		}
	}
	return nil
}

func printFindings(w io.Writer, scope string, r compliance.Result) {
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  [%s] error:   %s\n", scope, e)
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "  [%s] warning: %s\n", scope, warn)
	}
}

func printExpandedConfig(w io.Writer, format string, cfg *config.Config) error {
	if format == "json" {
		return writeJSON(w, cfg)
	}
	fmt.Fprintf(w, "# Expanded configuration (defaults applied, env vars resolved)\n\n")
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config as YAML: %w", err)
	}
	return enc.Close()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
