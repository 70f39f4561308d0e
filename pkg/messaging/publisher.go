package messaging

import "sync"

// Publisher is the narrow publishing surface the core services depend
// on. *Client satisfies it; tests use Recorder.
type Publisher interface {
	Publish(subject string, data interface{}) error
}

// Recorder is an in-memory Publisher that keeps everything published,
// in order.
type Recorder struct {
	mu       sync.Mutex
	Messages []RecordedMessage
}

// RecordedMessage is one captured publication.
type RecordedMessage struct {
	Subject string
	Data    interface{}
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(subject string, data interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Messages = append(r.Messages, RecordedMessage{Subject: subject, Data: data})
	return nil
}

// BySubject returns the captured messages for one subject.
func (r *Recorder) BySubject(subject string) []RecordedMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []RecordedMessage
	for _, m := range r.Messages {
		if m.Subject == subject {
			out = append(out, m)
		}
	}
	return out
}
