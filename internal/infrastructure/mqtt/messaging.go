package mqtt

import "fmt"

// maxPayloadSize rejects runaway payloads before they reach the
// broker. Device state snapshots and events are a few KB at most.
const maxPayloadSize = 1 << 20

// validateTopic rejects empty topics; publish additionally rejects
// wildcards at the broker, which we let it report.
func validateTopic(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	return nil
}

func validateQoS(qos byte) error {
	if qos > maxQoS {
		return fmt.Errorf("%w: got %d", ErrInvalidQoS, qos)
	}
	return nil
}

// Publish sends a payload to a topic and waits for the broker ack.
//
// Arguments are validated before the connection state is checked, so
// a malformed call is reported as such even while disconnected.
//
// Parameters:
//   - topic: Destination topic (non-empty)
//   - payload: Message body, at most 1 MiB
//   - qos: QoS level 0 to 2
//   - retained: Whether the broker keeps the message for late joiners
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrPublishFailed on
//     oversize payload or broker refusal, ErrNotConnected
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validateTopic(topic); err != nil {
		return err
	}
	if err := validateQoS(qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload %d bytes exceeds %d limit", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(ackTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, ackTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// PublishRetained publishes with the configured QoS and the retained
// flag set. Used for device and hub state topics so subscribers see
// the current snapshot immediately on connect.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}

// Subscribe registers a handler for a topic filter. The subscription
// survives reconnects; it is replayed automatically when the
// connection is re-established.
//
// Parameters:
//   - topic: Topic filter, wildcards allowed (non-empty)
//   - qos: QoS level 0 to 2
//   - handler: Called for each message; must be non-nil
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrSubscribeFailed on a
//     nil handler or broker refusal, ErrNotConnected
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := validateTopic(topic); err != nil {
		return err
	}
	if err := validateQoS(qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	// Record before the broker call so a reconnect racing this
	// subscribe still replays it.
	c.subMu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.subMu.Unlock()

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	if !token.WaitTimeout(ackTimeout) {
		c.forgetSubscription(topic)
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, ackTimeout)
	}
	if err := token.Error(); err != nil {
		c.forgetSubscription(topic)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// Unsubscribe removes a subscription and stops its replay on
// reconnect.
func (c *Client) Unsubscribe(topic string) error {
	if err := validateTopic(topic); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(ackTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrUnsubscribeFailed, ackTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}

	c.forgetSubscription(topic)
	return nil
}

func (c *Client) forgetSubscription(topic string) {
	c.subMu.Lock()
	delete(c.subs, topic)
	c.subMu.Unlock()
}

// SubscriptionCount returns the number of tracked subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subs)
}

// HasSubscription reports whether a topic filter is tracked.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, ok := c.subs[topic]
	return ok
}
