package probe

import (
	"Go2CrossCount/internal/engine/protocol"
	"Go2CrossCount/internal/model"
	"log"

	"github.com/nats-io/nats.go"
)

// Publisher is responsible for publishing stream messages and buckets to NATS.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(url, subject string) (*Publisher, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", url)
	return &Publisher{nc: nc, subject: subject}, nil
}

// Publish serializes a stream message to Protobuf and publishes it to the configured subject.
func (p *Publisher) Publish(msg *protocol.Message) error {
	data, err := protocol.Marshal(msg)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, data)
}

// PublishBucket serializes a flushed bucket and publishes it to the configured subject.
func (p *Publisher) PublishBucket(runID string, bucket *model.Bucket) error {
	data, err := protocol.MarshalBucket(runID, bucket)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, data)
}

// Flush blocks until the server has processed everything published so far.
func (p *Publisher) Flush() error {
	return p.nc.Flush()
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		log.Println("NATS connection drained and closed.")
	}
}
