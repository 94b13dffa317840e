package eventbus

import (
	"sync"
)

// Replier carries the consumer's answer back to whoever sent the message.
type Replier func(body any, headers map[string]string, err error)

// Message is what a consumer receives and what a ReplyHandler gets back.
type Message struct {
	address string
	headers map[string]string
	body    any
	replier Replier

	mutex   sync.Mutex
	replied bool
	hooks   []func(body any, err error)
}

// NewMessage builds a message. replier is nil for messages that expect no
// answer, e.g. published ones and replies themselves.
func NewMessage(address string, headers map[string]string, body any, replier Replier) *Message {
	if headers == nil {
		headers = map[string]string{}
	}
	return &Message{
		address: address,
		headers: headers,
		body:    body,
		replier: replier,
	}
}

func (m *Message) Address() string {
	return m.address
}

func (m *Message) Headers() map[string]string {
	return m.headers
}

func (m *Message) Header(key string) string {
	return m.headers[key]
}

func (m *Message) Body() any {
	return m.body
}

// ExpectsReply is false for sent and published messages.
func (m *Message) ExpectsReply() bool {
	return m.replier != nil
}

func (m *Message) Reply(body any) {
	m.ReplyWithOptions(body, nil)
}

func (m *Message) ReplyWithOptions(body any, opts *DeliveryOptions) {
	var headers map[string]string
	if opts != nil {
		headers = opts.Clone().Headers
	}
	m.reply(body, headers, nil)
}

// Fail answers with a recipient failure carrying code and message.
func (m *Message) Fail(code int, message string) {
	m.reply(nil, nil, NewReplyError(FailureRecipient, code, message))
}

// FailWith answers with err itself. Types with a registered default codec
// keep their type across the bus.
func (m *Message) FailWith(err error) {
	m.reply(nil, nil, err)
}

// AfterReply registers fn to run once the message has been answered.
func (m *Message) AfterReply(fn func(body any, err error)) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.hooks = append(m.hooks, fn)
}

func (m *Message) Replied() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.replied
}

func (m *Message) reply(body any, headers map[string]string, err error) {
	m.mutex.Lock()
	if m.replied {
		m.mutex.Unlock()
		return
	}
	m.replied = true
	hooks := m.hooks
	m.mutex.Unlock()

	if m.replier != nil {
		m.replier(body, headers, err)
	}
	for _, hook := range hooks {
		hook(body, err)
	}
}
