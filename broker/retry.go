package broker

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// RetryConfig bounds how hard RetryGateway pushes a rejected order.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier"`
	// SlippageGrowth widens OpenRequest.Slippage by this fraction of the
	// requested tolerance per extra attempt.
	SlippageGrowth float64 `yaml:"slippage_growth" json:"slippage_growth"`
	// SlippageStep adds this much price per extra attempt on top.
	SlippageStep float64 `yaml:"slippage_step" json:"slippage_step"`
}

// Slippage is the tolerance for an open attempt (1-based).
func (c RetryConfig) Slippage(base float64, attempt int) float64 {
	n := float64(attempt - 1)
	return base*(1+c.SlippageGrowth*n) + c.SlippageStep*n
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		Multiplier:     2,
		SlippageGrowth: 0.5,
	}
}

// RetryHook is told about every retry and every final outcome.
type RetryHook interface {
	OrderRetried(op string, code Retcode)
	OrderResult(op string, err error)
}

// RetryGateway wraps a Broker so order operations are retried on transient
// rejections with growing backoff. Permanent rejections return at once.
// Reads pass straight through.
type RetryGateway struct {
	Broker

	cfg  RetryConfig
	log  zerolog.Logger
	hook RetryHook
}

func NewRetryGateway(b Broker, cfg RetryConfig, logger zerolog.Logger) *RetryGateway {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	return &RetryGateway{
		Broker: b,
		cfg:    cfg,
		log:    logger.With().Str("component", "gateway").Logger(),
	}
}

// SetHook installs a RetryHook such as the metrics collector.
func (g *RetryGateway) SetHook(h RetryHook) {
	g.hook = h
}

func (g *RetryGateway) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = g.cfg.InitialDelay
	eb.MaxInterval = g.cfg.MaxDelay
	eb.Multiplier = g.cfg.Multiplier
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	eb.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(g.cfg.MaxAttempts-1)), ctx)
}

func (g *RetryGateway) do(ctx context.Context, op string, ticket uint64, fn func(attempt int) error) error {
	attempt := 0
	operation := func() error {
		attempt++
		g.log.Debug().Str("event", "order_attempt").Str("op", op).Uint64("ticket", ticket).Int("attempt", attempt).Send()
		err := fn(attempt)
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		code := CodeOf(err)
		g.log.Warn().Str("event", "order_retry").Str("op", op).Uint64("ticket", ticket).
			Int("attempt", attempt).Int("retcode", int(code)).Dur("wait", wait).Err(err).Send()
		if g.hook != nil {
			g.hook.OrderRetried(op, code)
		}
	}

	err := backoff.RetryNotify(operation, g.backOff(ctx), notify)

	var ev *zerolog.Event
	if err != nil {
		ev = g.log.Error().Err(err).Int("retcode", int(CodeOf(err))).Bool("transient", IsTransient(err))
	} else {
		ev = g.log.Info()
	}
	ev.Str("event", "order_result").Str("op", op).Uint64("ticket", ticket).Int("attempts", attempt).Bool("ok", err == nil).Send()
	if g.hook != nil {
		g.hook.OrderResult(op, err)
	}
	return err
}

// OpenPosition refreshes the price from the current quote on each retry and
// widens the accepted slippage per attempt (see RetryConfig.Slippage).
func (g *RetryGateway) OpenPosition(ctx context.Context, req OpenRequest) (uint64, error) {
	var ticket uint64
	base := req.Slippage
	err := g.do(ctx, "open", 0, func(attempt int) error {
		r := req
		r.Slippage = g.cfg.Slippage(base, attempt)
		if attempt > 1 {
			if q, err := g.Broker.GetQuote(ctx, req.Symbol); err == nil {
				if req.Direction.Sign() > 0 {
					r.Price = q.Ask
				} else {
					r.Price = q.Bid
				}
			}
		}
		t, err := g.Broker.OpenPosition(ctx, r)
		if err != nil {
			return err
		}
		ticket = t
		return nil
	})
	return ticket, err
}

func (g *RetryGateway) ModifyPosition(ctx context.Context, ticket uint64, stop, tp float64) error {
	return g.do(ctx, "modify", ticket, func(int) error {
		return g.Broker.ModifyPosition(ctx, ticket, stop, tp)
	})
}

func (g *RetryGateway) ClosePosition(ctx context.Context, ticket uint64) error {
	return g.do(ctx, "close", ticket, func(int) error {
		return g.Broker.ClosePosition(ctx, ticket)
	})
}

func (g *RetryGateway) ClosePartial(ctx context.Context, ticket uint64, volume float64) error {
	return g.do(ctx, "close_partial", ticket, func(int) error {
		return g.Broker.ClosePartial(ctx, ticket, volume)
	})
}
