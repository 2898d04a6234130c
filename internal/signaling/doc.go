// Package signaling implements one signal node: a WebSocket endpoint
// pairing two peers per room and relaying their offer/answer/ICE payloads
// verbatim. The relay never decrypts or inspects payloads beyond the type
// tag, does not authenticate clients and does not persist messages.
//
// Per-connection protocol, all frames JSON:
//
//	client -> server: {"type":"join","room":"<1-50 chars>"}; any other
//	                  type is opaque and forwarded to the peer untouched
//	server -> client: {"type":"init","initiator":bool}
//	                  {"type":"error","error":"<reason>"}
//
// Dead sockets are detected by the Tracker's ping/pong sweep within at
// most two sweep intervals.
package signaling
