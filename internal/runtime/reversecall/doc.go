// Package reversecall implements the client side of reverse call streams.
//
// The client opens a duplex stream to the Runtime, sends connect arguments
// and waits for the connect response. After that the Runtime drives the
// stream: it sends requests, the client runs a Handler for each one on its
// own goroutine and writes the response back stamped with the request's call
// id. Pings are answered with pongs. When the Runtime stays silent for three
// ping intervals the stream is considered dead.
//
// Envelopes differ per processor kind. A Protocol describes how to build and
// pick apart the envelopes of one kind, so Client stays generic over them.
package reversecall
