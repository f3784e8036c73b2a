package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/muurk/ucd/internal/config"
	"github.com/muurk/ucd/internal/connect"
	"github.com/muurk/ucd/internal/logging"
	"github.com/muurk/ucd/internal/mqttbridge"
	"github.com/muurk/ucd/internal/tui"
)

const stopTimeout = 10 * time.Second

// Stream command flags
var (
	eventsJSON bool

	mqttBroker   string
	mqttClientID string
	mqttUsername string
	mqttPrefix   string
	mqttQoS      int
)

func init() {
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(bridgeCmd)
}

// eventsCmd follows the controller's push events
var eventsCmd = &cobra.Command{
	Use:   "events [id...]",
	Short: "Follow device updates from the controller's event stream",
	Long: `Connect to the controller's event stream and print every device update.

Each push event that announces a device change triggers a refresh; every
device whose merged state may have changed is then printed with its current
shadow. Pass device ids to follow only those devices. Stop with Ctrl+C.`,
	Example: `  # Log every update
  ucd events

  # One JSON document per update, for a single device
  ucd events d1 --json`,
	RunE: runEvents,
}

func init() {
	eventsCmd.Flags().BoolVar(&eventsJSON, "json", false, "Print each update as one JSON line instead of a log line")
}

func runEvents(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if !eventsJSON {
		if err := ensureLogging(zapcore.InfoLevel); err != nil {
			return err
		}
	}

	client, t, err := openClient(ctx, true)
	if err != nil {
		return err
	}
	defer client.Close()

	sub := client.Subscribe(args...)
	defer sub.Close()

	if err := client.StartEvents(ctx); err != nil {
		return fmt.Errorf("failed to start event stream: %s", connect.ShortMessage(err))
	}
	defer stopEvents(client)

	logging.Info("Following device events",
		zap.String("controller", t.Name),
		zap.String("url", client.Watcher().URL()),
		zap.Int("devices", len(client.Devices())),
	)

	enc := json.NewEncoder(cmd.OutOrStdout())
	for {
		select {
		case <-ctx.Done():
			logging.Info("Stopped following events", zap.Int64("dropped_signals", sub.Dropped()))
			return nil
		case id, ok := <-sub.C:
			if !ok {
				return nil
			}
			d, found := client.Device(id)
			if eventsJSON {
				if !found {
					d = connect.Device{ID: id}
				}
				if err := enc.Encode(d); err != nil {
					return err
				}
				continue
			}
			if !found {
				logging.Info("Device removed", zap.String("device_id", id))
				continue
			}
			logging.Info("Device updated",
				zap.String("device_id", d.ID),
				zap.String("name", d.Name),
				zap.String("model", d.Model),
				zap.Bool("online", d.Online),
				zap.Any("shadow", d.Shadow),
			)
		}
	}
}

// ensureLogging turns logging on at level when no level was configured.
func ensureLogging(level zapcore.Level) error {
	if logging.GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		return nil
	}
	return logging.Initialize(level.String())
}

func stopEvents(client *connect.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := client.StopEvents(ctx); err != nil {
		logging.Warn("Failed to stop event stream", zap.Error(err))
	}
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Interactive dashboard",
	Long: `Open a terminal dashboard listing every device with its current state.

The dashboard follows the controller's event stream, so changes made from
the UniFi app show up live. Select a device to toggle its display, change
volume, rotation and mode.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, _, err := openClient(ctx, true)
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.StartEvents(ctx); err != nil {
			logging.Warn("Dashboard running without live events", zap.Error(err))
		} else {
			defer stopEvents(client)
		}

		if err := tui.Run(ctx, client); err != nil {
			return fmt.Errorf("dashboard error: %w", err)
		}
		return nil
	},
}

// bridgeCmd mirrors devices to MQTT
var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Bridge device state and commands to an MQTT broker",
	Long: `Publish every device as retained JSON and accept commands over MQTT.

Topics, with the default prefix "ucd" and site "default":

  ucd/status                      online/offline (retained, last will)
  ucd/default/<device>/state      device record and control values (retained)
  ucd/default/<device>/set        commands: {"action":"volume","args":{"value":30}},
                                  {"control":"display","value":false} or a bare action name
  ucd/default/<device>/result     outcome of each command

Broker settings come from the mqtt section of the config file and can be
overridden with flags. The broker password is read from ` + config.MQTTPasswordEnvVar + `.`,
	Example: `  ucd bridge --broker 192.168.1.10
  ucd bridge --broker ssl://broker.example.com:8883 --mqtt-username ucd --qos 1`,
	Args: cobra.NoArgs,
	RunE: runBridge,
}

func init() {
	bridgeCmd.Flags().StringVar(&mqttBroker, "broker", "", "MQTT broker (host[:port] or URL)")
	bridgeCmd.Flags().StringVar(&mqttClientID, "client-id", "", "MQTT client id (default "+config.DefaultClientID+")")
	bridgeCmd.Flags().StringVar(&mqttUsername, "mqtt-username", "", "MQTT username")
	bridgeCmd.Flags().StringVar(&mqttPrefix, "topic-prefix", "", "Topic prefix (default "+config.DefaultTopicPrefix+")")
	bridgeCmd.Flags().IntVar(&mqttQoS, "qos", -1, "MQTT QoS (0, 1, 2)")
}

func runBridge(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := ensureLogging(zapcore.InfoLevel); err != nil {
		return err
	}

	reg, err := config.LoadRegistry()
	if err != nil {
		return err
	}
	settings, err := bridgeSettings(reg.MQTT)
	if err != nil {
		return err
	}

	client, _, err := openClient(ctx, true)
	if err != nil {
		return err
	}
	defer client.Close()

	topics := mqttbridge.NewTopics(settings.TopicPrefix, client.Session().Site())
	broker, err := mqttbridge.Connect(mqttbridge.Config{
		Broker:      settings.Broker,
		ClientID:    settings.ClientID,
		Username:    settings.Username,
		Password:    os.Getenv(config.MQTTPasswordEnvVar),
		QoS:         settings.QoS,
		StatusTopic: topics.Status(),
	})
	if err != nil {
		return err
	}
	defer broker.Close()

	if err := client.StartEvents(ctx); err != nil {
		return fmt.Errorf("failed to start event stream: %s", connect.ShortMessage(err))
	}
	defer stopEvents(client)

	logging.Info("MQTT bridge running",
		zap.String("broker", mqttbridge.BrokerURL(settings.Broker)),
		zap.String("set_topic", topics.AllSet()),
		zap.Int("devices", len(client.Devices())),
	)
	return mqttbridge.New(broker, client, topics, settings.QoS).Run(ctx)
}

// bridgeSettings layers the bridge flags over the config file section.
func bridgeSettings(section *config.MQTT) (config.MQTT, error) {
	var merged config.MQTT
	if section != nil {
		merged = *section
	}
	if mqttBroker != "" {
		merged.Broker = mqttBroker
	}
	if mqttClientID != "" {
		merged.ClientID = mqttClientID
	}
	if mqttUsername != "" {
		merged.Username = mqttUsername
	}
	if mqttPrefix != "" {
		merged.TopicPrefix = mqttPrefix
	}
	if mqttQoS >= 0 {
		if mqttQoS > 2 {
			return config.MQTT{}, mqttbridge.ErrInvalidQoS
		}
		merged.QoS = byte(mqttQoS)
	}

	settings := merged.WithDefaults()
	if settings.Broker == "" {
		return config.MQTT{}, errors.New("no MQTT broker: set mqtt.broker in the config file or pass --broker")
	}
	return settings, nil
}
