package main

import (
	"fmt"
	"os"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mcornejo/mqttc"
	"github.com/mcornejo/mqttc/internal/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mqttc",
	Short: "A synchronous MQTT 3.1.1 client",
	Long: `mqttc publishes and subscribes over MQTT 3.1.1.

Broker and credentials can be given as flags, environment variables, or in
a config file (default $HOME/.mqttc.yaml).
`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mqttc.yaml)")
	rootCmd.PersistentFlags().String("broker", "tcp://localhost:1883", "broker URL (tcp, mqtt, tls, ssl or mqtts scheme)")
	rootCmd.PersistentFlags().String("client-id", "", "client identifier (generated when empty)")
	rootCmd.PersistentFlags().Int("keep-alive", 30, "keep-alive in seconds (0 disables the heartbeat)")
	rootCmd.PersistentFlags().Bool("clean-session", true, "ask the broker to discard prior session state")
	rootCmd.PersistentFlags().String("username", "", "CONNECT user name")
	rootCmd.PersistentFlags().String("password", "", "CONNECT password")
	rootCmd.PersistentFlags().String("gcp-key-file", "", "PEM key file; builds a Cloud IoT style JWT password")
	rootCmd.PersistentFlags().String("gcp-project", "", "audience claim for the JWT password")
	rootCmd.PersistentFlags().String("log-level", "warn", "logrus level: trace, debug, info, warn, error")

	for _, flag := range []string{
		"broker", "client-id", "keep-alive", "clean-session",
		"username", "password", "gcp-key-file", "gcp-project", "log-level",
	} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".mqttc")
	}

	viper.SetEnvPrefix("mqttc")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	logging.SetLevelFromName(viper.GetString("log-level"))
}

// sessionOptions assembles the engine configuration from the resolved CLI
// settings.
func sessionOptions(extra ...mqttc.Option) ([]mqttc.Option, error) {
	password := viper.GetString("password")
	if keyFile := viper.GetString("gcp-key-file"); keyFile != "" {
		jwt, err := cloudIoTPassword(keyFile, viper.GetString("gcp-project"))
		if err != nil {
			return nil, logging.LoggedErrorf("building JWT password: %s", err)
		}
		password = jwt
	}

	opts := []mqttc.Option{
		mqttc.ClientID(viper.GetString("client-id")),
		mqttc.KeepAlive(time.Duration(viper.GetInt("keep-alive")) * time.Second),
		mqttc.CleanSession(viper.GetBool("clean-session")),
	}
	if username := viper.GetString("username"); username != "" {
		opts = append(opts, mqttc.Username(username))
	}
	if password != "" {
		opts = append(opts, mqttc.Password(password))
	}
	return append(opts, extra...), nil
}
