// Package mqtt publishes KeyRhythm attempt events to an MQTT broker.
//
// The client keeps a retained status document on <prefix>/system/status:
// "online" after every (re)connect, "offline" with reason
// graceful_shutdown on Close, and a broker-held will with reason
// unexpected_disconnect for crashes. Attempts go to <prefix>/auth/<action>
// as JSON, not retained.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(client.Topics().Attempt("login"), event)
//
// Anonymous broker access is for local development only; set
// mqtt.broker.tls and credentials in production.
package mqtt
