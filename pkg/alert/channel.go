package alert

import "context"

// Channel delivers alerts over one transport.
type Channel interface {
	Name() string
	Send(ctx context.Context, a Alert) error
}

// ChannelFunc adapts a function to the Channel interface.
type ChannelFunc struct {
	ChannelName string
	SendFunc    func(ctx context.Context, a Alert) error
}

func (c ChannelFunc) Name() string {
	return c.ChannelName
}

func (c ChannelFunc) Send(ctx context.Context, a Alert) error {
	return c.SendFunc(ctx, a)
}
