package mqtt

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type mqttToken = mqtt.Token

// fakeToken 仅用于单元测试
type fakeToken struct {
	done chan struct{}
	err  error
}

func newDoneToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func newPendingToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func (t *fakeToken) complete(err error) {
	t.err = err
	close(t.done)
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

type publishCall struct {
	topic   string
	qos     byte
	payload []byte
}

// fakePaho 实现 mqtt.Client，记录调用顺序
type fakePaho struct {
	mu           sync.Mutex
	connectToken mqtt.Token
	nextPublish  []mqttToken
	published    []publishCall
	disconnects  []uint
	connected    bool
}

func (f *fakePaho) IsConnected() bool      { return f.connected }
func (f *fakePaho) IsConnectionOpen() bool { return f.connected }

func (f *fakePaho) Connect() mqtt.Token {
	if f.connectToken == nil {
		f.connected = true
		return newDoneToken(nil)
	}
	return f.connectToken
}

func (f *fakePaho) Disconnect(quiesce uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnects = append(f.disconnects, quiesce)
}

func (f *fakePaho) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishCall{topic: topic, qos: qos, payload: payload.([]byte)})
	if len(f.nextPublish) == 0 {
		return newDoneToken(nil)
	}
	t := f.nextPublish[0]
	f.nextPublish = f.nextPublish[1:]
	return t
}

func (f *fakePaho) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token {
	return newDoneToken(nil)
}

func (f *fakePaho) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return newDoneToken(nil)
}

func (f *fakePaho) Unsubscribe(...string) mqtt.Token { return newDoneToken(nil) }

func (f *fakePaho) AddRoute(string, mqtt.MessageHandler) {}

func (f *fakePaho) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }
