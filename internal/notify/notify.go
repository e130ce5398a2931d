// Package notify fans task transitions out to interested subscribers.
package notify

import "github.com/makeasinger/fxgateway/internal/model"

// Notifier is told about every task that reached a terminal state.
type Notifier interface {
	TaskFinished(task *model.Task)
}

// Fanout forwards each notification to all of its members.
type Fanout []Notifier

// TaskFinished implements Notifier
func (f Fanout) TaskFinished(task *model.Task) {
	for _, n := range f {
		if n != nil {
			n.TaskFinished(task)
		}
	}
}

// Nop discards notifications.
type Nop struct{}

// TaskFinished implements Notifier
func (Nop) TaskFinished(*model.Task) {}
