// Package relay carries channel events over websockets.
//
// The server side keeps one watermill subscription per channel key and fans the
// events out to every websocket client subscribed to that key. Publishing happens
// through a small HTTP endpoint. The client side implements channel.Transport so
// that a channel.Manager can attach to a remote relay the same way it attaches to
// an in-process watermill subscriber.
//
// Wire frames are JSON objects tagged with a "type":
//
//	{"type":"subscribe","channel":"chat:c1"}
//	{"type":"unsubscribe","channel":"chat:c1"}
//	{"type":"subscribed","channel":"chat:c1"}
//	{"type":"event","channel":"chat:c1","event":"incoming-message","data":{...}}
//	{"type":"error","channel":"chat:c1","message":"..."}
package relay
