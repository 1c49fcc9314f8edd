package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/lakegate/internal/core/ports/driven"
)

// openConfigStore opens the writable config file. Swapped in tests.
var openConfigStore func(path string) (driven.ConfigStore, error)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read and write the configuration file",
	Long: `Reads and writes keys of the TOML configuration file using dot
notation, for example blobstore.bucket or pipeline.concurrency.
Environment variables (LAKEGATE_*) still override what is written here.`,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Sets a configuration value. Booleans, integers and floats are stored
with their type; comma-separated values are stored as lists for keys that
take lists (validation.required_fields).`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

// listKeys are stored as string lists by config set.
var listKeys = map[string]bool{
	"validation.required_fields": true,
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// SetConfigStoreOpener sets how config get and set open the config file.
func SetConfigStoreOpener(open func(path string) (driven.ConfigStore, error)) {
	openConfigStore = open
}

func loadConfigStore() (driven.ConfigStore, error) {
	if openConfigStore == nil {
		return nil, fmt.Errorf("config store not configured")
	}
	return openConfigStore(configPath)
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	store, err := loadConfigStore()
	if err != nil {
		return err
	}
	val, ok := store.Get(args[0])
	if !ok {
		return fmt.Errorf("key %q is not set in %s", args[0], store.Path())
	}
	if list := store.GetStringSlice(args[0]); list != nil {
		cmd.Println(strings.Join(list, ","))
		return nil
	}
	cmd.Println(fmt.Sprint(val))
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	store, err := loadConfigStore()
	if err != nil {
		return err
	}
	key, raw := args[0], args[1]
	if err := store.Set(key, parseValue(key, raw)); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	cmd.Printf("%s = %s\n", key, raw)
	return nil
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	store, err := loadConfigStore()
	if err != nil {
		return err
	}
	cmd.Println(store.Path())
	return nil
}

// parseValue converts a command-line value to the TOML type it most likely means.
func parseValue(key, raw string) any {
	if listKeys[key] {
		parts := strings.Split(raw, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
