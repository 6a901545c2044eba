package workthread

// Packet is one message handed to a WorkThread, the Go analogue of
// cye_packet.h's Packet: an application-defined id plus an opaque
// payload. There is no separate wire header here — Go's garbage
// collector makes cyclone's alloc/free packet pool unnecessary, so a
// Packet is just a plain value passed through queue.Queue.
type Packet struct {
	ID      uint16
	Payload []byte
}
