package broker

import (
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ahoge-moe/Shiden/internal/models"
)

// Disposition is what happens to a delivery once its job has finished.
type Disposition int

// Dispositions.
const (
	// Ack removes the message: the job succeeded.
	Ack Disposition = iota
	// Requeue hands the message back for redelivery.
	Requeue
	// Reject drops the message for good: it can never become valid.
	Reject
	// Abandon sends nothing; the connection is going away and the broker
	// redelivers unacked messages on its own.
	Abandon
)

// String implements fmt.Stringer.
func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Requeue:
		return "nack-requeue"
	case Reject:
		return "reject"
	case Abandon:
		return "abandon"
	default:
		return "unknown"
	}
}

// DispositionFor maps a job outcome onto a disposition by error category.
func DispositionFor(err error) Disposition {
	switch models.CategoryOf(err) {
	case models.CategoryNone:
		return Ack
	case models.CategoryValidation:
		return Reject
	case models.CategoryKilled:
		return Abandon
	default:
		return Requeue
	}
}

// Apply settles d according to disp.
func (disp Disposition) Apply(d amqp.Delivery) error {
	switch disp {
	case Ack:
		return d.Ack(false)
	case Requeue:
		return d.Nack(false, true)
	case Reject:
		return d.Reject(false)
	default:
		return nil
	}
}
