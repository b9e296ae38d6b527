package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"gopkg.in/yaml.v3"

	"github.com/AnotherFoxGuy/sogeBot/internal/types"
)

// rulesFile is the YAML document exchanged by export and import.
type rulesFile struct {
	Rules []types.Rule `yaml:"rules" json:"rules"`
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage event rules through the admin API",
}

var rulesExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write every rule as YAML (stdout when no file is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := &structpb.Struct{}
		if err := adminCall("ListRules", nil, out); err != nil {
			return err
		}
		raw, err := out.MarshalJSON()
		if err != nil {
			return err
		}
		var doc rulesFile
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("decoding rules: %w", err)
		}
		// Triggered state is runtime data and is never imported.
		for i := range doc.Rules {
			doc.Rules[i].Triggered = nil
		}

		w := cmd.OutOrStdout()
		if len(args) == 1 {
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encoding rules: %w", err)
		}
		return enc.Close()
	},
}

var rulesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Create or update rules from a YAML file ('-' reads stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		doc, err := readRules(r)
		if err != nil {
			return err
		}

		for i, rule := range doc.Rules {
			req, err := ruleStruct(rule)
			if err != nil {
				return fmt.Errorf("rule %d: %w", i, err)
			}
			saved := &structpb.Struct{}
			if err := adminCall("SaveRule", req, saved); err != nil {
				return fmt.Errorf("rule %d (%s): %w", i, rule.EventName, err)
			}
			id, _ := saved.AsMap()["id"].(string)
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%s)\n", id, rule.EventName)
		}
		return nil
	},
}

var rulesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := structpb.NewStruct(map[string]any{"id": args[0]})
		if err != nil {
			return err
		}
		return adminCall("DeleteRule", req, &emptypb.Empty{})
	},
}

func init() {
	addClientFlags(rulesCmd)
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesExportCmd, rulesImportCmd, rulesDeleteCmd)
}

// readRules decodes a rules document. Rules are enabled unless they say otherwise.
func readRules(r io.Reader) (rulesFile, error) {
	var nodes struct {
		Rules []yaml.Node `yaml:"rules"`
	}
	if err := yaml.NewDecoder(r).Decode(&nodes); err != nil {
		if err == io.EOF {
			return rulesFile{}, nil
		}
		return rulesFile{}, fmt.Errorf("decoding rules: %w", err)
	}

	doc := rulesFile{Rules: make([]types.Rule, 0, len(nodes.Rules))}
	for i, n := range nodes.Rules {
		rule := types.Rule{IsEnabled: true}
		if err := n.Decode(&rule); err != nil {
			return rulesFile{}, fmt.Errorf("rule %d: %w", i, err)
		}
		doc.Rules = append(doc.Rules, rule)
	}
	return doc, nil
}

// ruleStruct converts a rule into a SaveRule request.
func ruleStruct(rule types.Rule) (*structpb.Struct, error) {
	rule.Triggered = nil
	raw, err := json.Marshal(rule)
	if err != nil {
		return nil, err
	}
	req := &structpb.Struct{}
	if err := req.UnmarshalJSON(raw); err != nil {
		return nil, err
	}
	return req, nil
}
