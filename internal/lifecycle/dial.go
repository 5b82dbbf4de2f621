package lifecycle

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/duel/internal/conn"
)

// WebsocketDialer dials the game service with credential on every call.
func WebsocketDialer(opts conn.Options, credential string, log *zap.Logger) Dialer {
	return func(ctx context.Context, dispatch conn.Dispatch) (Connection, error) {
		c, err := conn.Dial(ctx, opts, credential, dispatch, log)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}
