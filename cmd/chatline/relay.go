package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/chatline/pkg/redisstream"
	"github.com/go-go-golems/chatline/pkg/relay"
)

type RelayCommand struct {
	*cmds.CommandDescription
}

var _ cmds.BareCommand = (*RelayCommand)(nil)

func NewRelayCommand() (*RelayCommand, error) {
	relaySection, err := relay.NewSection()
	if err != nil {
		return nil, errors.Wrap(err, "build relay section")
	}
	redisSection, err := redisstream.NewParameterLayer()
	if err != nil {
		return nil, errors.Wrap(err, "build redis section")
	}
	desc := cmds.NewCommandDescription(
		"relay",
		cmds.WithShort("Serve the websocket relay and the publish API"),
		cmds.WithLong("Fans channel events out to websocket clients. Events are carried in memory, or over Redis Streams with --redis-enabled so several relays share them."),
		cmds.WithSections(relaySection, redisSection),
	)
	return &RelayCommand{CommandDescription: desc}, nil
}

func (c *RelayCommand) Run(ctx context.Context, parsed *values.Values) error {
	rs := relay.Settings{}
	if err := parsed.DecodeSectionInto(relay.SectionSlug, &rs); err != nil {
		return errors.Wrap(err, "init relay settings")
	}
	redis := redisstream.Settings{}
	if err := parsed.DecodeSectionInto(redisstream.SectionSlug, &redis); err != nil {
		return errors.Wrap(err, "init redis settings")
	}

	ps, err := redisstream.BuildPubSub(redis)
	if err != nil {
		return err
	}
	defer func() { _ = ps.Close() }()

	srv, err := relay.NewServer(ps.Publisher, ps.Subscriber,
		relay.WithSettings(rs),
		relay.WithBeforeSubscribe(ps.EnsureGroupAtTail),
	)
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpSrv := &http.Server{
		Addr:              rs.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		log.Info().Str("component", "relay").Str("addr", rs.Addr).Bool("redis", redis.Enabled).Msg("relay listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "relay http server")
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Close()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}
