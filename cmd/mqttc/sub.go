package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mcornejo/mqttc"
	"github.com/mcornejo/mqttc/internal/logging"
)

var subCmd = &cobra.Command{
	Use:   "sub FILTER [FILTER...]",
	Short: "Subscribe to topic filters and print publications",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return logging.LoggedErrorf("at least one topic filter is required")
		}
		if qos := viper.GetInt("sub-qos"); qos < 0 || qos > 2 {
			return logging.LoggedErrorf("--sub-qos must be between 0 and 2, got %d", qos)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := sessionOptions()
		if err != nil {
			return err
		}

		client, err := mqttc.NewOptions(opts...).Connect(viper.GetString("broker"))
		if err != nil {
			return err
		}

		qos := mqttc.QoS(viper.GetInt("sub-qos"))
		subs := make(mqttc.SubscribeTopics, 0, len(args))
		for _, filter := range args {
			subs = append(subs, mqttc.SubscribeTopic{Topic: filter, QoS: qos})
		}
		if err := client.Subscribe(subs); err != nil {
			return err
		}

		for {
			msg, err := client.Await()
			if err != nil {
				return err
			}
			if msg == nil {
				continue
			}
			fmt.Printf("%s %s\n", msg.Topic, msg.Payload)
			if msg.QoS == mqttc.ExactlyOnce {
				if err := client.Complete(msg.PacketID); err != nil {
					return err
				}
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(subCmd)

	subCmd.Flags().Int("sub-qos", 0, "requested quality of service: 0, 1 or 2")

	if err := viper.BindPFlag("sub-qos", subCmd.Flags().Lookup("sub-qos")); err != nil {
		panic(err)
	}
}
