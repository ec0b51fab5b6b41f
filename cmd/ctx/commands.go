package ctx

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ValentinKolb/dCtx/cmd/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [scope] [key...]",
		Short: "Gets the values for one or more keys of a scope",
		Long: util.WrapString(`Prints the value of a single key, or an array of values when several keys are given. ` +
			`Absent keys are printed as null.`),
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, keys := args[0], args[1:]

			if len(keys) == 1 {
				value, err := store.Get(cmd.Context(), scope, keys[0])
				if err != nil {
					return err
				}
				return printValue(cmd, value)
			}

			values, err := store.GetMany(cmd.Context(), scope, keys)
			if err != nil {
				return err
			}
			if outputFormat() == "yaml" {
				byKey := make(map[string]any, len(keys))
				for i, k := range keys {
					byKey[k] = values[i]
				}
				return printValue(cmd, byKey)
			}
			return printValue(cmd, values)
		},
	}
	setCmd = &cobra.Command{
		Use:   "set [scope] [key] [value]",
		Short: "Sets the value for a key",
		Long: util.WrapString(`The value is parsed as JSON (e.g. 42, true, {"a":[1]}). ` +
			`If it is not valid JSON or --raw is given it is stored as a string.`),
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, key := args[0], args[1]
			value := parseValue(args[2], viper.GetBool("raw"))
			if err := store.Set(cmd.Context(), scope, key, value); err != nil {
				return err
			}
			fmt.Println("set successfully")
			return nil
		},
	}
	unsetCmd = &cobra.Command{
		Use:   "unset [scope] [key...]",
		Short: "Removes one or more keys from a scope",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := store.UnsetMany(cmd.Context(), args[0], args[1:]); err != nil {
				return err
			}
			fmt.Println("unset successfully")
			return nil
		},
	}
	keysCmd = &cobra.Command{
		Use:   "keys [scope]",
		Short: "Lists the keys of a scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := store.Keys(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			sort.Strings(keys)
			return printValue(cmd, keys)
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [scope]",
		Short: "Deletes a whole scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// the deletion completes while the store is closed
			store.Delete(args[0])
			fmt.Println("deleted successfully")
			return nil
		},
	}
	cleanCmd = &cobra.Command{
		Use:   "clean [active-node...]",
		Short: "Removes leftovers of nodes that are no longer active",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := store.Clean(cmd.Context(), args); err != nil {
				return err
			}
			fmt.Println("cleaned successfully")
			return nil
		},
	}
)

func init() {
	key := "output"
	ContextCommands.PersistentFlags().StringP(key, "o", "json", util.WrapString("Output format of get and keys (json, yaml)"))

	key = "raw"
	setCmd.Flags().Bool(key, false, util.WrapString("Store the value as a string without parsing it as JSON"))
}

// parseValue interprets text as JSON, falling back to the plain string
func parseValue(text string, raw bool) any {
	if raw {
		return text
	}
	var value any
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return text
	}
	return value
}

func outputFormat() string {
	return viper.GetString("output")
}

// printValue writes value to stdout in the configured output format
func printValue(cmd *cobra.Command, value any) error {
	out := cmd.OutOrStdout()
	switch outputFormat() {
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(value)
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(value)
	default:
		return fmt.Errorf("invalid output format %s", outputFormat())
	}
}
