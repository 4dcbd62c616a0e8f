package probe

import (
	"Go2CrossCount/internal/config"
	"Go2CrossCount/internal/engine/protocol"
	"Go2CrossCount/internal/model"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

const defaultFetchTimeout = 10 * time.Second

// Subscriber consumes a snapshot stream from a NATS subject.
// It implements the model.Source interface.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	timeout time.Duration
	info    model.StreamInfo
}

// NewSubscriber connects to NATS, subscribes to the configured subject and
// waits for the stream header.
func NewSubscriber(cfg config.NATSSourceConfig) (*Subscriber, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	timeout := defaultFetchTimeout
	if cfg.FetchTimeout != "" {
		d, err := time.ParseDuration(cfg.FetchTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid fetch timeout: %w", err)
		}
		timeout = d
	}

	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrSourceUnavailable, err)
	}
	log.Printf("Connected to NATS server at %s", url)

	sub, err := nc.SubscribeSync(cfg.Subject)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("%w: failed to subscribe to '%s': %v", model.ErrSourceUnavailable, cfg.Subject, err)
	}
	s := &Subscriber{nc: nc, sub: sub, subject: cfg.Subject, timeout: timeout}

	msg, err := s.next(context.Background())
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: no stream header on '%s': %v", model.ErrSourceUnavailable, cfg.Subject, err)
	}
	if msg.Kind != protocol.KindHeader {
		s.Close()
		return nil, fmt.Errorf("%w: first message on '%s' is %s, not a header", model.ErrSourceUnavailable, cfg.Subject, msg.Kind)
	}
	s.info = msg.Info
	log.Printf("Subscribed to '%s'. Waiting for frames...", cfg.Subject)
	return s, nil
}

// Info returns the stream header received on subscription.
func (s *Subscriber) Info() model.StreamInfo {
	return s.info
}

// Next waits for the next frame. An end-of-stream message, or no message
// within the fetch timeout, ends the stream with io.EOF.
func (s *Subscriber) Next(ctx context.Context) (*model.FrameSnapshot, error) {
	msg, err := s.next(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			log.Printf("No frame on '%s' for %s, treating the stream as ended.", s.subject, s.timeout)
			return nil, io.EOF
		}
		return nil, err
	}
	switch msg.Kind {
	case protocol.KindFrame:
		return msg.Frame, nil
	case protocol.KindEOS:
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("unexpected %s message inside the frame stream", msg.Kind)
	}
}

func (s *Subscriber) next(ctx context.Context) (*protocol.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	m, err := s.sub.NextMsgWithContext(ctx)
	if err != nil {
		return nil, err
	}
	return protocol.Unmarshal(m.Data)
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() error {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
		log.Println("NATS connection closed.")
	}
	return nil
}

// BucketHandler is a function that processes a received bucket.
type BucketHandler func(msg *protocol.BucketMessage)

// BucketListener subscribes to the buckets published by the nats writer.
type BucketListener struct {
	nc  *nats.Conn
	sub *nats.Subscription
}

// NewBucketListener creates a new NATS bucket listener.
func NewBucketListener(url string) (*BucketListener, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", url)
	return &BucketListener{nc: nc}, nil
}

// Start subscribes to the given subject and starts processing buckets with the provided handler.
func (l *BucketListener) Start(subject string, handler BucketHandler) error {
	sub, err := l.nc.Subscribe(subject, func(msg *nats.Msg) {
		bucket, err := protocol.UnmarshalBucket(msg.Data)
		if err != nil {
			log.Printf("Error unmarshalling bucket: %v", err)
			return
		}
		handler(bucket)
	})
	if err != nil {
		return err
	}
	l.sub = sub
	log.Printf("Subscribed to '%s'. Waiting for buckets...", subject)
	return nil
}

// Close unsubscribes and closes the NATS connection.
func (l *BucketListener) Close() {
	if l.sub != nil {
		l.sub.Unsubscribe()
	}
	if l.nc != nil {
		l.nc.Close()
		log.Println("NATS connection closed.")
	}
}
