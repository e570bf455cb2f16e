// Package discovery lets a home automation hub find the bridge on the LAN.
//
// Three responders are available:
//
//   - SSDP advertises the bridge on 239.255.255.250:1900 with periodic
//     ssdp:alive messages, answers matching M-SEARCH requests and says
//     ssdp:byebye on shutdown.
//   - SSDP in listen mode stays quiet until a hub searches. A search that
//     carries a CALLBACK header is answered by POSTing the bridge's address
//     to that URL, so the hub can register itself through the ping
//     endpoint. Announcements are single-flight and rate limited per
//     callback.
//   - MDNS answers DNS-SD queries for the bridge's service on
//     224.0.0.251:5353.
//
// Transport errors are logged and never stop a responder. A socket that
// cannot be opened is retried with exponential backoff, so Run returns only
// when its context is cancelled.
package discovery
