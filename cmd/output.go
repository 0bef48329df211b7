// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var outputFormat string

func addFormatFlag(c *cobra.Command) {
	c.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format (text, json, yaml)")
}

// printOutput writes v in the selected format. text is used verbatim for
// the text format.
func printOutput(w io.Writer, format string, v interface{}, text string) error {
	switch format {
	case "", "text":
		_, err := io.WriteString(w, text)
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (use text, json or yaml)", format)
	}
}

func printResult(v interface{}, text string) error {
	return printOutput(os.Stdout, outputFormat, v, text)
}
