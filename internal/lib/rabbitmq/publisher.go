// Package rabbitmq публикация JSON-сообщений в RabbitMQ.
package rabbitmq

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streadway/amqp"
)

// Channel часть *amqp.Channel, нужная для публикации.
type Channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// PublishMessage публикует сообщение в RabbitMQ.
func PublishMessage(ch Channel, exchange string, routingkey string, message any) error {
	const op = "rabbitmq.PublishMessage"
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = ch.Publish(
		exchange,
		routingkey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Publisher публикует в один exchange. Канал amqp не допускает
// одновременную публикацию, поэтому вызовы сериализуются.
type Publisher struct {
	mu       sync.Mutex
	ch       Channel
	exchange string
}

// NewPublisher создаёт Publisher для exchange.
func NewPublisher(ch Channel, exchange string) *Publisher {
	return &Publisher{ch: ch, exchange: exchange}
}

// Publish публикует message с ключом routingKey.
func (p *Publisher) Publish(routingKey string, message any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PublishMessage(p.ch, p.exchange, routingKey, message)
}
