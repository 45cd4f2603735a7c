// Package queue carries outbound email over RabbitMQ. The publisher side
// satisfies mail.Sender so the account workflows can enqueue instead of
// talking SMTP; the consumer side renders and delivers the jobs.
package queue

import "time"

// EmailQueueName is the durable queue outbound email jobs are routed to.
const EmailQueueName = "email.outbound"

// EmailJob is the payload of one queued email. It carries the template
// name and substitutions rather than rendered HTML so the consumer owns
// rendering.
type EmailJob struct {
	To         string            `json:"to"`
	Template   string            `json:"template"`
	Data       map[string]string `json:"data"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
}
