// Package events publishes task lifecycle events to NATS.
package events

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/makeasinger/fxgateway/internal/model"
)

// Conn is the part of *nats.Conn the publisher uses
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher emits a TaskEvent on <prefix>.<status> for every finished task
type Publisher struct {
	nc     Conn
	prefix string
	logger *log.Logger
}

// Connect dials NATS and returns a publisher bound to the connection
func Connect(url, prefix string) (*Publisher, *nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("fxgateway"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return NewPublisher(nc, prefix), nc, nil
}

// NewPublisher creates a publisher on an existing connection
func NewPublisher(nc Conn, prefix string) *Publisher {
	if prefix == "" {
		prefix = "fxgateway.tasks"
	}
	return &Publisher{
		nc:     nc,
		prefix: strings.TrimSuffix(prefix, "."),
		logger: log.New(log.Writer(), "[EVENTS] ", log.LstdFlags),
	}
}

// Subject returns the subject used for a status
func (p *Publisher) Subject(status model.TaskStatus) string {
	return p.prefix + "." + string(status)
}

// TaskFinished publishes the terminal state of a task
func (p *Publisher) TaskFinished(task *model.Task) {
	event := model.TaskEvent{
		TaskID:    task.ID,
		Effect:    task.Effect,
		Status:    task.Status,
		Result:    task.Result,
		Error:     task.Error,
		CreatedAt: task.CreatedAt,
		Timestamp: time.Now(),
	}
	// Inlined artifacts can exceed the NATS payload limit; subscribers poll for them.
	if strings.HasPrefix(event.Result, "data:") {
		event.Result = ""
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Printf("Error marshaling task event: %v", err)
		return
	}

	if err := p.nc.Publish(p.Subject(task.Status), data); err != nil {
		p.logger.Printf("Error publishing task event for %s: %v", task.ID, err)
	}
}
