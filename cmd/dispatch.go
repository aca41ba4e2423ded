package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/sowerflow/sowerflow/internal/dispatch"
	"github.com/sowerflow/sowerflow/internal/metrics"
)

// dispatchCommand runs drain invocations in-process, for schedulers that run
// a command instead of calling the HTTP trigger.
func dispatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "dispatch",
		Usage: "drain awaiting conversations, one per invocation",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "max",
				Value: 1,
				Usage: "stop after this many invocations or at the first idle one",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 60 * time.Second,
				Usage: "deadline for each invocation",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if err := cfg.ValidateDispatch(); err != nil {
				return err
			}

			b, err := openBackends(c.Context, cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			app := wire(cfg, b, metrics.New(prometheus.NewRegistry()))
			for i := 0; i < c.Int("max"); i++ {
				res, err := drainOnce(c.Context, app.dispatch, c.Duration("timeout"))
				if err != nil {
					return err
				}
				log.Info().Str("outcome", string(res.Outcome)).Str("conversation_id", res.ConversationID).Msg(res.Message)
				if res.Outcome == dispatch.OutcomeIdle {
					break
				}
			}
			return nil
		},
	}
}

func drainOnce(parent context.Context, svc dispatch.Service, timeout time.Duration) (dispatch.Result, error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	return svc.DrainOnce(ctx)
}
