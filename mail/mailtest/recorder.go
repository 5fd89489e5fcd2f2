// Package mailtest captures outbound mail in memory.
package mailtest

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-auth-hub/mail"
)

var _ mail.Mailer = (*Recorder)(nil)

type Recorder struct {
	mu       sync.Mutex
	messages []mail.Message
	err      error
}

func (r *Recorder) Send(_ context.Context, msg mail.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.messages = append(r.messages, msg)
	return nil
}

// FailWith makes every following Send return err. A nil err restores delivery.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *Recorder) Messages() []mail.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]mail.Message(nil), r.messages...)
}

// Last returns the most recent message, or an empty one.
func (r *Recorder) Last() mail.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return mail.Message{}
	}
	return r.messages[len(r.messages)-1]
}
