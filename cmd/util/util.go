package util

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/dCtx/lib/ctxstore"
	"github.com/ValentinKolb/dCtx/lib/ctxstore/codec"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables (e.g. DCTX_REDIS_HOST)
	EnvPrefix = "dctx"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupStoreFlags adds the flags describing the remote store to a command
func SetupStoreFlags(cmd *cobra.Command) {
	key := "redis-host"
	cmd.PersistentFlags().String(key, "localhost", WrapString("Host of the Redis server"))

	key = "redis-port"
	cmd.PersistentFlags().Int(key, 6379, WrapString("Port of the Redis server"))

	key = "redis-username"
	cmd.PersistentFlags().String(key, "", WrapString("Username for the Redis server. Credentials are only sent if a username is set"))

	key = "redis-password"
	cmd.PersistentFlags().String(key, "", WrapString("Password for the Redis server (prefer the DCTX_REDIS_PASSWORD environment variable)"))

	key = "redis-db"
	cmd.PersistentFlags().Int(key, 0, WrapString("Logical database selected after connecting"))

	key = "prefix"
	cmd.PersistentFlags().String(key, "", WrapString("Prefix applied to every scope name (prefix:scope)"))

	key = "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("Default timeout in seconds for every store operation (0 disables it)"))

	key = "await-unset"
	cmd.PersistentFlags().Bool(key, false, WrapString("Wait until removed keys are acknowledged by the server instead of returning immediately"))
}

// InitConfig loads .env files and initializes viper to read environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetStoreConfig reads the store configuration from viper
func GetStoreConfig() ctxstore.Config {
	return ctxstore.Config{
		Host:          viper.GetString("redis-host"),
		Port:          viper.GetInt("redis-port"),
		Username:      viper.GetString("redis-username"),
		Password:      viper.GetString("redis-password"),
		DB:            viper.GetInt("redis-db"),
		Prefix:        viper.GetString("prefix"),
		TimeoutSecond: viper.GetInt("timeout"),
		AwaitUnset:    viper.GetBool("await-unset"),
	}
}

// GetCodec creates the value codec based on configuration
func GetCodec() (codec.IValueCodec, error) {
	name := viper.GetString("codec")
	c, ok := codec.ByName(name)
	if !ok {
		return nil, fmt.Errorf("invalid codec %s", name)
	}
	return c, nil
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
