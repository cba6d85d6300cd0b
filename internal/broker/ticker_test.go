package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickerSubscribesStoredTokensOnFirstConnect(t *testing.T) {
	tk := NewZerodhaTicker(ZerodhaTickerConfig{APIKey: "key", AccessToken: "token"})

	var sent [][]uint32
	tk.subscribeFn = func(tokens []uint32) error {
		sent = append(sent, append([]uint32(nil), tokens...))
		return nil
	}

	// Subscribing before the socket is up only stores the tokens.
	require.NoError(t, tk.Subscribe([]uint32{256265}))
	assert.Empty(t, sent)

	connectedCh := make(chan struct{}, 1)
	tk.socketConnected(connectedCh)

	require.Len(t, sent, 1)
	assert.Equal(t, []uint32{256265}, sent[0])
	<-connectedCh
}

func TestTickerResubscribesOnReconnect(t *testing.T) {
	tk := NewZerodhaTicker(ZerodhaTickerConfig{APIKey: "key", AccessToken: "token"})

	var sends int
	tk.subscribeFn = func(tokens []uint32) error {
		sends++
		return nil
	}
	require.NoError(t, tk.Subscribe([]uint32{256265}))

	connectedCh := make(chan struct{}, 1)
	tk.socketConnected(connectedCh)
	<-connectedCh
	tk.socketConnected(connectedCh)

	assert.Equal(t, 2, sends)
}

func TestTickerSubscribeWhileConnectedSendsImmediately(t *testing.T) {
	tk := NewZerodhaTicker(ZerodhaTickerConfig{APIKey: "key", AccessToken: "token"})

	var sent [][]uint32
	tk.subscribeFn = func(tokens []uint32) error {
		sent = append(sent, append([]uint32(nil), tokens...))
		return nil
	}

	connectedCh := make(chan struct{}, 1)
	tk.socketConnected(connectedCh)
	require.Empty(t, sent) // nothing stored yet

	require.NoError(t, tk.Subscribe([]uint32{111, 222}))
	require.Len(t, sent, 1)
	assert.Equal(t, []uint32{111, 222}, sent[0])
}
