package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/AnotherFoxGuy/sogeBot/internal/core/api"
)

var (
	serverAddr  string
	apiKey      string
	callTimeout time.Duration
)

// addClientFlags registers the flags shared by commands that call the admin API.
func addClientFlags(c *cobra.Command) {
	c.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:50051", "admin API address")
	c.PersistentFlags().StringVar(&apiKey, "api-key", "", "admin API key (defaults to SB_API_KEY)")
	c.PersistentFlags().DurationVar(&callTimeout, "timeout", 30*time.Second, "request timeout")
}

// adminCall dials the admin API, invokes one method and closes the connection.
func adminCall(name string, req *structpb.Struct, out proto.Message) error {
	key := apiKey
	if key == "" {
		key = os.Getenv("SB_API_KEY")
	}
	if key == "" {
		return fmt.Errorf("--api-key or SB_API_KEY required")
	}

	conn, err := grpc.NewClient(serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", serverAddr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, "x-api-key", key)

	if err := api.NewAdminClient(conn).Call(ctx, name, req, out); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// parseAttributes merges --attrs JSON with repeated key=value --attr pairs.
// Values of key=value pairs are decoded as JSON when possible, else kept as strings.
func parseAttributes(raw string, pairs []string) (map[string]any, error) {
	attrs := map[string]any{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
			return nil, fmt.Errorf("invalid --attrs JSON: %w", err)
		}
	}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --attr %q, want key=value", p)
		}
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			decoded = v
		}
		attrs[k] = decoded
	}
	return attrs, nil
}

func printJSON(cmd *cobra.Command, msg *structpb.Struct) error {
	raw, err := json.MarshalIndent(msg.AsMap(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(raw))
	return nil
}

var fireCmd = &cobra.Command{
	Use:   "fire <event|rule-id>",
	Short: "Fire an event through the running engine",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetString("attrs")
		pairs, _ := cmd.Flags().GetStringArray("attr")
		attrs, err := parseAttributes(raw, pairs)
		if err != nil {
			return err
		}
		req, err := structpb.NewStruct(map[string]any{"event": args[0], "attributes": attrs})
		if err != nil {
			return fmt.Errorf("invalid attributes: %w", err)
		}
		return adminCall("Fire", req, &emptypb.Empty{})
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset <event>",
	Short: "Clear triggered state of every rule bound to an event kind",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := structpb.NewStruct(map[string]any{"event": args[0]})
		if err != nil {
			return err
		}
		out := &structpb.Struct{}
		if err := adminCall("Reset", req, out); err != nil {
			return err
		}
		return printJSON(cmd, out)
	},
}

var testFireCmd = &cobra.Command{
	Use:   "test-fire <rule-id>",
	Short: "Run a rule's operations with synthetic attributes",
	Long: `Run a rule's operations with synthetic attributes. Each --var name=value
sets a variable; --random name asks the engine to generate a value.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pairs, _ := cmd.Flags().GetStringArray("var")
		randomized, _ := cmd.Flags().GetStringSlice("random")

		given, err := parseAttributes("", pairs)
		if err != nil {
			return err
		}
		variables := make([]any, 0, len(pairs)+len(randomized))
		values := make([]any, 0, len(pairs)+len(randomized))
		for _, p := range pairs {
			name, _, _ := strings.Cut(p, "=")
			variables = append(variables, name)
			values = append(values, given[name])
		}
		random := make([]any, 0, len(randomized))
		for _, name := range randomized {
			variables = append(variables, name)
			values = append(values, nil)
			random = append(random, name)
		}

		req, err := structpb.NewStruct(map[string]any{
			"id":         args[0],
			"variables":  variables,
			"values":     values,
			"randomized": random,
		})
		if err != nil {
			return err
		}
		return adminCall("TestFire", req, &emptypb.Empty{})
	},
}

var catalogCmd = &cobra.Command{
	Use:       "catalog <events|operations>",
	Short:     "List supported event kinds or operations",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"events", "operations"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var method string
		switch args[0] {
		case "events":
			method = "ListEventKinds"
		case "operations":
			method = "ListOperations"
		default:
			return fmt.Errorf("unknown catalog %q, want events or operations", args[0])
		}
		out := &structpb.Struct{}
		if err := adminCall(method, nil, out); err != nil {
			return err
		}
		return printJSON(cmd, out)
	},
}

func init() {
	for _, c := range []*cobra.Command{fireCmd, resetCmd, testFireCmd, catalogCmd} {
		addClientFlags(c)
		rootCmd.AddCommand(c)
	}
	fireCmd.Flags().String("attrs", "", "event attributes as a JSON object")
	fireCmd.Flags().StringArray("attr", nil, "event attribute as key=value (repeatable)")
	testFireCmd.Flags().StringArray("var", nil, "variable as name=value (repeatable)")
	testFireCmd.Flags().StringSlice("random", nil, "variables to randomize")
}
