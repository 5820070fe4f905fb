package util

import (
	"fmt"
	"strings"

	"github.com/flashkv/fKV/lib/device"
	"github.com/flashkv/fKV/lib/device/engines/boltdev"
	"github.com/flashkv/fKV/lib/device/engines/memdev"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
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

// SetupStoreFlags adds the common store connection flags to a command
func SetupStoreFlags(cmd *cobra.Command) {
	key := "path"
	cmd.PersistentFlags().String(key, "fkv.db", WrapString("Path to the store device or file"))

	key = "engine"
	cmd.PersistentFlags().String(key, "bolt", WrapString("Storage engine to use (mem, bolt)"))

	key = "store-version"
	cmd.PersistentFlags().Uint32(key, device.DefaultAPIVersion, WrapString("Version tag validated against the version recorded in the store at first open"))

	key = "expiry-mode"
	cmd.PersistentFlags().String(key, "disabled", WrapString("Expiry mode of the store (disabled, arbitrary, global)"))

	key = "expiry-time"
	cmd.PersistentFlags().Uint32(key, 0, WrapString("Store-wide TTL in seconds, required for global expiry mode"))

	key = "pool"
	cmd.PersistentFlags().String(key, "", WrapString("Pool tag to operate on (empty for the default pool)"))
}

// InitClientConfig initializes configuration from environment variables
func InitClientConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("fkv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// StoreConfig is the resolved store connection configuration.
type StoreConfig struct {
	Path    string
	Engine  string
	Pool    string
	Options device.Options
}

func (c *StoreConfig) String() string {
	return fmt.Sprintf("path=%s engine=%s pool=%q version=%d expiry=%s/%ds",
		c.Path, c.Engine, c.Pool, c.Options.Version, c.Options.ExpiryMode, c.Options.ExpiryTime)
}

// GetStoreConfig reads the store configuration from viper
func GetStoreConfig() (*StoreConfig, error) {
	mode, err := parseExpiryMode(viper.GetString("expiry-mode"))
	if err != nil {
		return nil, err
	}

	return &StoreConfig{
		Path:   viper.GetString("path"),
		Engine: viper.GetString("engine"),
		Pool:   viper.GetString("pool"),
		Options: device.Options{
			Version:    viper.GetUint32("store-version"),
			ExpiryMode: mode,
			ExpiryTime: viper.GetUint32("expiry-time"),
		},
	}, nil
}

// GetEngine resolves the engine factory named in the configuration
func GetEngine(conf *StoreConfig) (device.Factory, error) {
	switch conf.Engine {
	case "mem":
		return memdev.Open, nil
	case "bolt":
		return boltdev.Open, nil
	default:
		return nil, fmt.Errorf("invalid engine %s", conf.Engine)
	}
}

func parseExpiryMode(s string) (device.ExpiryMode, error) {
	switch s {
	case "disabled", "":
		return device.ExpiryDisabled, nil
	case "arbitrary":
		return device.ExpiryArbitrary, nil
	case "global":
		return device.ExpiryGlobal, nil
	default:
		return 0, fmt.Errorf("invalid expiry mode %s", s)
	}
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
