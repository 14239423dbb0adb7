package mqtt

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/SherlockH0olms/Intellica/common/config"

	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestClient(fake *fakePaho, opts Options) *Client {
	cfg := &config.MQTTConfig{Host: "localhost", Port: 1883, QoS: 1}
	return &Client{client: fake, config: cfg, opts: withDefaults(opts), logger: zap.NewNop()}
}

func TestConnect_Success(t *testing.T) {
	fake := &fakePaho{}
	c := newTestClient(fake, Options{})

	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, c.IsConnected())
}

func TestConnect_FailureReportsReturnCode(t *testing.T) {
	fake := &fakePaho{connectToken: newDoneToken(errors.New("dial tcp: connection refused"))}

	var gotCode byte
	var gotReason string
	c := newTestClient(fake, Options{OnConnect: func(code byte, reason string) {
		gotCode, gotReason = code, reason
	}})

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tcp://localhost:1883")
	assert.Equal(t, byte(packets.ErrNetworkError), gotCode)
	assert.Equal(t, ReturnCodeReason(packets.ErrNetworkError), gotReason)
}

func TestConnect_BoundedWait(t *testing.T) {
	fake := &fakePaho{connectToken: newPendingToken()}
	c := newTestClient(fake, Options{ConnectWait: 20 * time.Millisecond})

	start := time.Now()
	err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrConnectTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPublish_FireAndContinue(t *testing.T) {
	pending := newPendingToken()
	fake := &fakePaho{nextPublish: []mqttToken{pending}}
	c := newTestClient(fake, Options{})

	require.NoError(t, c.Publish("factory/CNC/CNC_001/sensors", []byte(`{}`)))
	assert.Equal(t, 1, c.Pending())
	require.Len(t, fake.published, 1)
	assert.Equal(t, byte(1), fake.published[0].qos)

	pending.complete(nil)
	assert.Equal(t, 0, c.Pending())
}

func TestPublish_ImmediateFailureIsReported(t *testing.T) {
	fake := &fakePaho{nextPublish: []mqttToken{newDoneToken(errors.New("not connected"))}}
	c := newTestClient(fake, Options{})

	err := c.Publish("factory/CNC/CNC_001/sensors", []byte(`{}`))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "factory/CNC/CNC_001/sensors"))
}

func TestPublish_BoundedWaitTimesOut(t *testing.T) {
	fake := &fakePaho{nextPublish: []mqttToken{newPendingToken()}}
	c := newTestClient(fake, Options{PublishTimeout: 10 * time.Millisecond})

	err := c.Publish("factory/Conveyor/CONV_001/sensors", []byte(`{}`))
	require.ErrorIs(t, err, ErrPublishTimeout)
}

func TestStopProcessing_DrainsAndRefusesPublish(t *testing.T) {
	pending := newPendingToken()
	fake := &fakePaho{nextPublish: []mqttToken{pending}}
	c := newTestClient(fake, Options{DrainTimeout: time.Second})

	require.NoError(t, c.Publish("factory/CNC/CNC_001/sensors", []byte(`{}`)))

	go func() {
		time.Sleep(10 * time.Millisecond)
		pending.complete(nil)
	}()
	c.StopProcessing()

	assert.Equal(t, 0, c.Pending())
	assert.ErrorIs(t, c.Publish("factory/CNC/CNC_001/sensors", []byte(`{}`)), ErrStopped)
}

func TestDisconnect_NotifiesAndQuiesces(t *testing.T) {
	fake := &fakePaho{}
	var notified bool
	var gotErr error
	c := newTestClient(fake, Options{OnDisconnect: func(err error) {
		notified = true
		gotErr = err
	}})

	require.NoError(t, c.Connect(context.Background()))
	c.Disconnect()

	assert.True(t, notified)
	assert.NoError(t, gotErr)
	assert.Equal(t, []uint{250}, fake.disconnects)
	assert.False(t, c.IsConnected())
}

func TestClientID_IsUniquePerCall(t *testing.T) {
	a := ClientID("factory-simulator")
	b := ClientID("factory-simulator")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "factory-simulator-"))
	assert.True(t, strings.HasPrefix(ClientID(""), "factory-simulator-"))
}

func TestReturnCodeReason(t *testing.T) {
	assert.Equal(t, "Connection Accepted", ReturnCodeReason(packets.Accepted))
	assert.Contains(t, ReturnCodeReason(42), "unknown")
}

func TestPublish_LogsBackgroundFailureWhilePruning(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	first := newPendingToken()
	fake := &fakePaho{nextPublish: []mqttToken{first, newPendingToken()}}
	c := newTestClient(fake, Options{})
	c.logger = zap.New(core)

	require.NoError(t, c.Publish("factory/CNC/CNC_001/sensors", []byte(`{}`)))
	first.complete(errors.New("connection lost"))
	require.NoError(t, c.Publish("factory/CNC/CNC_001/sensors", []byte(`{}`)))

	assert.Equal(t, 1, c.Pending())
	require.Equal(t, 1, logs.FilterMessage("Publish failed").Len())
	assert.Equal(t, "connection lost", logs.FilterMessage("Publish failed").All()[0].ContextMap()["error"])
}

func TestStopProcessing_LogsPendingCount(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	pending := newPendingToken()
	fake := &fakePaho{nextPublish: []mqttToken{pending}}
	c := newTestClient(fake, Options{DrainTimeout: 20 * time.Millisecond})
	c.logger = zap.New(core)

	require.NoError(t, c.Publish("factory/CNC/CNC_001/sensors", []byte(`{}`)))
	c.StopProcessing()

	waiting := logs.FilterMessage("Waiting for in-flight messages").All()
	require.Len(t, waiting, 1)
	assert.Equal(t, int64(1), waiting[0].ContextMap()["count"])
	assert.Equal(t, 1, logs.FilterMessage("Messages left unacknowledged at shutdown").Len())
}
