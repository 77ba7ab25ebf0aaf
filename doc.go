// Package mqttc is a synchronous, single-connection MQTT 3.1.1 client
// engine: it sequences the CONNECT/CONNACK handshake, drives the QoS 0/1/2
// delivery pipelines with packet-identifier allocation, persists in-flight
// messages in pluggable stores, tracks subscriptions, sends keep-alive pings
// and recovers from disconnections.
//
// A session is configured through Options and connected with a broker URL:
//
//	client, err := mqttc.NewOptions(
//	    mqttc.ClientID("sensor-1"),
//	    mqttc.KeepAlive(30*time.Second),
//	).Connect("tcp://broker.example.com:1883")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = client.Subscribe(mqttc.Filters{"sensors/#"})
//	for {
//	    msg, err := client.Await()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    if msg == nil {
//	        continue // session normalized, nothing pending
//	    }
//	    handle(msg)
//	    if msg.QoS == mqttc.ExactlyOnce {
//	        client.Complete(msg.PacketID)
//	    }
//	}
//
// The engine is single-threaded by design: every state transition happens on
// the caller's goroutine, and no locks are taken. Byte-level packet encoding
// and decoding is delegated to github.com/eclipse/paho.mqtt.golang/packets.
package mqttc
