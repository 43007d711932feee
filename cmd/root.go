package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/alejoacosta74/kraken-ws/internal/system"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "KRAKENWS"

var (
	cfgFile     string
	stopProfile func()
)

// rootCmd is the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kraken-ws",
	Short: "Kraken WebSocket v1 client",
	Long: `kraken-ws subscribes to Kraken WebSocket v1 feeds and issues requests
over them. Settings come from flags, KRAKENWS_* environment variables and an
optional config file, in that order of precedence.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: teardown,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.String("log-level", "info", "log level: trace, debug, info, warn, error")
	flags.String("public-url", "", "public WebSocket endpoint")
	flags.String("auth-url", "", "authenticated WebSocket endpoint")
	flags.String("token", "", "WebSocket token for private feeds and trading")
	flags.Duration("timeout", 0, "response timeout for queries and subscriptions")
	flags.Float64("rate-limit", 0, "max outbound messages per second per connection, 0 disables")
	flags.String("cpuprofile", "", "write a CPU profile to this file")
	flags.String("memprofile", "", "write a heap profile to this file on exit")

	bindFlag("log.level", "log-level")
	bindFlag("client.public_url", "public-url")
	bindFlag("client.auth_url", "auth-url")
	bindFlag("client.token", "token")
	bindFlag("client.response_timeout", "timeout")
	bindFlag("client.rate_limit", "rate-limit")
	bindFlag("profile.cpu", "cpuprofile")
	bindFlag("profile.mem", "memprofile")
}

func bindFlag(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

// setup loads the configuration, then applies logging, runtime settings
// and profiling.
func setup(cmd *cobra.Command, args []string) error {
	if err := initConfig(viper.GetViper(), cfgFile); err != nil {
		return err
	}

	level, err := logrus.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	system.LoadFromViper(viper.GetViper()).Apply()

	stopProfile, err = system.StartProfiling(viper.GetString("profile.cpu"))
	return err
}

func teardown(cmd *cobra.Command, args []string) {
	if stopProfile != nil {
		stopProfile()
	}
	if err := system.WriteHeapProfile(viper.GetString("profile.mem")); err != nil {
		logrus.WithError(err).Error("Failed to write heap profile")
	}
}

// initConfig wires environment variables and the optional config file into v.
func initConfig(v *viper.Viper, file string) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file == "" {
		return nil
	}
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", file, err)
	}
	logrus.WithField("file", v.ConfigFileUsed()).Debug("Loaded config file")
	return nil
}
