// Package client wires the control handshake, the datagram session and the
// challenge loop into one run, with console output, event logging and
// metrics around them.
package client

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/danmuck/superclient/internal/challenge"
	"github.com/danmuck/superclient/internal/console"
	"github.com/danmuck/superclient/internal/observability"
	"github.com/danmuck/superclient/internal/protocol/session"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const metricsNode = "superclient"

type Client struct {
	cfg     Config
	logger  zerolog.Logger
	console *console.Console
	events  session.EventSink
}

// New builds a client writing its transcript to out.
func New(cfg Config, out io.Writer, logger zerolog.Logger) *Client {
	con := console.New(out, cfg.ANSI)
	return &Client{
		cfg:     cfg,
		logger:  logger,
		console: con,
		events: session.MultiEvents{
			observability.NewEventLog(logger, cfg.Verbose),
			observability.NewSessionMetrics(),
			newConsoleEvents(con),
		},
	}
}

// Run performs one complete session. Cancelling ctx closes both channels
// and unblocks any pending read.
func (c *Client) Run(ctx context.Context) (challenge.Result, error) {
	if err := c.cfg.Validate(); err != nil {
		return challenge.Result{}, err
	}
	if c.cfg.MetricsAddr == "" {
		return c.runSession(ctx)
	}

	ln, err := net.Listen("tcp", c.cfg.MetricsAddr)
	if err != nil {
		return challenge.Result{}, fmt.Errorf("metrics listener %s: %w", c.cfg.MetricsAddr, err)
	}
	c.logger.Info().Str("addr", ln.Addr().String()).Msg("serving metrics")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return observability.Serve(gctx, ln, observability.NewRouter(metricsNode, c.logger))
	})
	var res challenge.Result
	g.Go(func() error {
		defer cancel()
		var runErr error
		res, runErr = c.runSession(gctx)
		return runErr
	})
	err = g.Wait()
	return res, err
}

func (c *Client) runSession(ctx context.Context) (challenge.Result, error) {
	features := c.cfg.Session.Features
	c.console.Banner([]console.Feature{
		{Name: "Encryption", Enabled: features.Encryption},
		{Name: "Multipart", Enabled: features.Multipart},
		{Name: "Parity", Enabled: features.Parity},
	})

	c.console.Info("Fetching connection parameters...")
	hs, err := session.NewControlClient(c.cfg.Session, c.events).Negotiate(ctx, c.cfg.ControlAddress())
	if err != nil {
		return challenge.Result{}, err
	}
	c.logger.Debug().
		Str("session_id", hs.SessionID).
		Int("port", hs.Port).
		Str("features", features.String()).
		Msg("handshake complete")

	c.console.Info("Opening UDP connection...")
	ds, err := session.DialDatagram(ctx, c.cfg.datagramAddress(hs.Port), session.ParamsFromHandshake(hs, c.cfg.Session), c.events)
	if err != nil {
		return challenge.Result{}, fmt.Errorf("%w: %w", ErrDatagram, err)
	}
	defer ds.Close()

	loop := challenge.NewLoop(ds, challenge.Observer{
		OnExchange: func(ex challenge.Exchange) {
			observability.RecordChallengeAnswered()
			c.console.Challenge(ex.Challenge, ex.Response)
		},
		OnFinal: c.console.Final,
	})
	if err := loop.Greet(ctx, hs.SessionID); err != nil {
		return challenge.Result{}, c.datagramError(ctx, err)
	}
	c.console.OK("Success")
	c.console.Info("Waiting for challenges...")

	res, err := loop.Run(ctx)
	if err != nil {
		return res, c.datagramError(ctx, err)
	}
	enc, dec := ds.RemainingKeys()
	c.logger.Debug().
		Int("exchanges", res.Exchanges).
		Int("encrypt_keys_left", enc).
		Int("decrypt_keys_left", dec).
		Msg("exchange over")
	c.console.Info("Exchange over, quitting...")
	return res, nil
}

func (c *Client) datagramError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %w", ErrDatagram, err)
}
