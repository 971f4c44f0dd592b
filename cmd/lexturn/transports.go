package main

import (
	"log/slog"

	"github.com/harunnryd/lexturn/pkg/config"
	"github.com/harunnryd/lexturn/pkg/interaction"
	"github.com/harunnryd/lexturn/pkg/lex"
	"github.com/harunnryd/lexturn/pkg/logging"
	"github.com/harunnryd/lexturn/pkg/metrics"
	"github.com/harunnryd/lexturn/pkg/request"
	"github.com/harunnryd/lexturn/pkg/transports"
	"github.com/harunnryd/lexturn/pkg/transports/httpapi"
	"github.com/harunnryd/lexturn/pkg/transports/mock"
	"github.com/harunnryd/lexturn/pkg/transports/ws"
)

func newRegistry() *transports.Registry {
	reg := transports.NewRegistry()
	reg.Register("httpapi", httpapi.Factory)
	reg.Register("ws", ws.Factory)
	reg.Register("mock", mock.Factory)
	return reg
}

// session is what a conversation needs besides its listener and audio source.
type session struct {
	transport transports.Transport
	builder   *request.Builder
}

func newSession(cfg config.Config, log *slog.Logger, obs metrics.Observer) (*session, error) {
	creds := cfg.Credentials.Provider()
	builder, err := request.NewBuilder(cfg.Bot, creds)
	if err != nil {
		return nil, err
	}
	tr, err := newRegistry().Build(cfg.Transports.Provider, cfg.Transports.Settings, transports.Options{
		Logger:      logging.NewComponentLogger(log, "transport"),
		Observer:    obs,
		Credentials: creds,
	})
	if err != nil {
		return nil, err
	}
	fields := []any{"provider", tr.Name(), "bot", cfg.Bot.Name, "alias", cfg.Bot.Alias}
	if rr, ok := tr.(transports.ReadyReporter); ok {
		for k, v := range rr.ReadyFields() {
			fields = append(fields, k, v)
		}
	}
	log.Info("transport_ready", fields...)
	return &session{transport: tr, builder: builder}, nil
}

func (s *session) client(cfg interaction.Config, opts interaction.Options) (*interaction.Client, error) {
	opts.Transport = s.transport
	opts.Builder = s.builder
	return interaction.New(cfg, opts)
}

func (s *session) Close() error {
	if c, ok := s.transport.(transports.Closer); ok {
		return c.Close()
	}
	return nil
}

// describe renders a bot reply for the terminal commands.
func describe(resp *lex.Response) string {
	if resp == nil {
		return ""
	}
	if resp.Message != "" {
		return resp.Message
	}
	return "(" + string(resp.DialogState) + ")"
}
