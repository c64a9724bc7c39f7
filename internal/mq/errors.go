package mq

import "errors"

// Ошибки работы с RabbitMQ.
var (
	// ErrNoChannel — AMQP канал недоступен (нет соединения или идёт reconnect).
	ErrNoChannel = errors.New("no amqp channel available")

	// ErrConnectionClosed — соединение закрыто через Close.
	ErrConnectionClosed = errors.New("amqp connection closed")

	// ErrInvalidMessage — тело сообщения не является корректным Message.
	ErrInvalidMessage = errors.New("invalid message")
)
