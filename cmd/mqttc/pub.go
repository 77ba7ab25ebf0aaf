package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mcornejo/mqttc"
	"github.com/mcornejo/mqttc/internal/logging"
)

var pubCmd = &cobra.Command{
	Use:   "pub",
	Short: "Publish an MQTT message",
	Long: `Publishes a message and, for QoS above 0, waits until the broker has
acknowledged it before disconnecting.
`,
	Args: func(cmd *cobra.Command, args []string) error {
		if qos := viper.GetInt("qos"); qos < 0 || qos > 2 {
			return logging.LoggedErrorf("--qos must be between 0 and 2, got %d", qos)
		}
		if viper.GetString("topic") == "" {
			return logging.LoggedErrorf("--topic is required")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := publishOptions()
		if err != nil {
			return err
		}

		client, err := mqttc.NewOptions(opts...).Connect(viper.GetString("broker"))
		if err != nil {
			return err
		}

		pubOpt := mqttc.PubOpt{
			QoS:    mqttc.QoS(viper.GetInt("qos")),
			Retain: viper.GetBool("retain"),
		}
		if err := client.Publish(viper.GetString("topic"), []byte(viper.GetString("message")), pubOpt); err != nil {
			return err
		}

		// QoS above 0: drain acknowledgements until the session normalizes.
		if pubOpt.QoS > mqttc.AtMostOnce {
			if _, err := client.Await(); err != nil {
				return err
			}
		}
		return client.Disconnect()
	},
}

func publishOptions() ([]mqttc.Option, error) {
	var extra []mqttc.Option
	if willTopic := viper.GetString("will-topic"); willTopic != "" {
		extra = append(extra, mqttc.WithLastWill(
			willTopic,
			[]byte(viper.GetString("will-message")),
			mqttc.PubOpt{
				QoS:    mqttc.QoS(viper.GetInt("will-qos")),
				Retain: viper.GetBool("will-retain"),
			},
		))
	}
	return sessionOptions(extra...)
}

func init() {
	rootCmd.AddCommand(pubCmd)

	pubCmd.Flags().String("topic", "", "topic name to publish to")
	pubCmd.Flags().String("message", "", "payload to publish")
	pubCmd.Flags().Int("qos", 0, "quality of service: 0, 1 or 2")
	pubCmd.Flags().Bool("retain", false, "ask the broker to retain the message")
	pubCmd.Flags().String("will-topic", "", "last-will topic")
	pubCmd.Flags().String("will-message", "", "last-will payload")
	pubCmd.Flags().Int("will-qos", 0, "last-will quality of service")
	pubCmd.Flags().Bool("will-retain", false, "retain the last will")

	for _, flag := range []string{
		"topic", "message", "qos", "retain",
		"will-topic", "will-message", "will-qos", "will-retain",
	} {
		if err := viper.BindPFlag(flag, pubCmd.Flags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
}
