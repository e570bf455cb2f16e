// Package mqtt provides MQTT client connectivity for the garage bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions, restored after every reconnect
//   - Last Will and Testament (LWT) on the bridge status topic
//
// # Topics
//
// All topics live under the configured prefix (default "garagebridge"):
//
//	garagebridge/status            retained bridge health, LWT
//	garagebridge/state/{doorId}    retained door state
//	garagebridge/event/{doorId}    door transitions (not retained)
//	garagebridge/command/{doorId}  inbound open/close commands
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, lwtPayload)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.NewTopics(cfg.MQTT.TopicPrefix)
//	err = client.Publish(topics.State("CG0812345"), payload, 1, true)
package mqtt
