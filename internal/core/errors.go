package core

import "errors"

var (
	ErrChatNotFound    = errors.New("chat not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrNotConnected    = errors.New("not connected")
	ErrClosed          = errors.New("engine closed")
)
