// Package queue holds the transport-neutral types shared by the broker
// clients: the inbound Message, the Handler callback and the Decision a
// handler returns for each delivery.
package queue

import "context"

// Message is one broker delivery.
type Message struct {
	Key     []byte
	Body    []byte
	Headers map[string]string
	// Redelivered is set when the broker reports a previous delivery attempt.
	Redelivered bool
}

// Decision tells the transport how to settle a delivery.
type Decision struct {
	Ack     bool
	Requeue bool
}

// Ack settles the delivery as done.
func Ack() Decision {
	return Decision{Ack: true}
}

// Nack rejects the delivery. With requeue the broker redelivers it;
// without, it is dead-lettered.
func Nack(requeue bool) Decision {
	return Decision{Requeue: requeue}
}

func (d Decision) String() string {
	switch {
	case d.Ack:
		return "ack"
	case d.Requeue:
		return "nack_requeue"
	default:
		return "nack_dead_letter"
	}
}

// Handler processes a single message and decides how it is settled.
type Handler func(ctx context.Context, msg Message) Decision
