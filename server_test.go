package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleMessageParseError(t *testing.T) {
	s, _ := newMockServer(t)

	resp := s.handleMessage([]byte("{not json"))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ParseError, resp.Error.Code)
}

func TestHandleMessageInvalidVersion(t *testing.T) {
	s, _ := newMockServer(t)

	resp := s.handleMessage([]byte(`{"jsonrpc":"1.0","id":1,"method":"ping"}`))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, InvalidRequest, resp.Error.Code)
}

func TestHandleMessagePing(t *testing.T) {
	s, _ := newMockServer(t)

	resp := s.handleMessage([]byte(`{"jsonrpc":"2.0","id":7,"method":"ping"}`))
	require.NotNil(t, resp)
	assert.Nil(t, resp.Error)
	assert.Equal(t, float64(7), resp.ID)
}

func TestHandleMessageMethodNotFound(t *testing.T) {
	s, _ := newMockServer(t)

	resp := s.handleMessage([]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/destroy"}`))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, MethodNotFound, resp.Error.Code)
}

func TestHandleMessageInitializedNotificationHasNoResponse(t *testing.T) {
	s, _ := newMockServer(t)

	resp := s.handleMessage([]byte(`{"jsonrpc":"2.0","id":null,"method":"initialized"}`))
	assert.Nil(t, resp)
}
