package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/live-caption-translator/internal/caption"
	"github.com/MimeLyc/live-caption-translator/internal/display"
	"github.com/MimeLyc/live-caption-translator/internal/httpapi"
	"github.com/MimeLyc/live-caption-translator/internal/pipeline"
	"github.com/MimeLyc/live-caption-translator/internal/protocol"
	"github.com/MimeLyc/live-caption-translator/internal/subtitle"
	"github.com/MimeLyc/live-caption-translator/pkg/log"
)

type watchOptions struct {
	page      string
	stdin     bool
	srt       string
	speed     float64
	clientID  string
	selectors []string
}

func watchCmd(flags *globalFlags) *cobra.Command {
	opts := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Translate captions from a page, stdin or a subtitle file as they change",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			channel, err := openChannel(ctx, a, flags.server, opts.clientID)
			if err != nil {
				return err
			}
			defer channel.Close()

			settings, err := a.settings.Get(ctx)
			if err != nil {
				return err
			}

			source, err := opts.source(cfg.Translate.PollInterval)
			if err != nil {
				return err
			}

			machine := display.NewMachine(display.NewTerminalRenderer(cmd.OutOrStdout()), cfg.Display.ErrorReset)
			defer machine.Close()

			return pipeline.New(channel, a.cache, a.counters, machine, settings.Enabled).Run(ctx, source)
		},
	}
	cmd.Flags().StringVar(&opts.page, "page", "", "file path or URL of the page showing the captions")
	cmd.Flags().BoolVar(&opts.stdin, "stdin", false, "read one caption sample per line from stdin")
	cmd.Flags().StringVar(&opts.srt, "srt", "", "replay an SRT subtitle file as live captions")
	cmd.Flags().Float64Var(&opts.speed, "speed", 1, "playback speed for --srt")
	cmd.Flags().StringVar(&opts.clientID, "client-id", fmt.Sprintf("cli-%d", os.Getpid()), "id this pipeline uses with the coordinator")
	cmd.Flags().StringSliceVar(&opts.selectors, "selector", nil, "CSS selector of the caption element (repeatable)")
	return cmd
}

func (o *watchOptions) validate() error {
	sources := 0
	for _, set := range []bool{o.page != "", o.stdin, o.srt != ""} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return errors.New("exactly one of --page, --stdin or --srt is required")
	}
	return nil
}

func (o *watchOptions) source(interval time.Duration) (caption.Source, error) {
	switch {
	case o.stdin:
		return caption.NewLineSource(os.Stdin), nil
	case o.srt != "":
		track, err := subtitle.ReadFile(o.srt)
		if err != nil {
			return nil, err
		}
		log.Info("Replaying %d cues (%s) from %s", len(track.Cues), track.Language, o.srt)
		return caption.NewReplaySource(track, interval, o.speed), nil
	default:
		return caption.NewPageSource(o.page, interval, caption.NewExtractor(o.selectors...)), nil
	}
}

// openChannel dials the remote coordinator, or starts the local one and
// connects to it in-process.
func openChannel(ctx context.Context, a *app, server string, clientID string) (protocol.Channel, error) {
	if server != "" {
		client, err := httpapi.Dial(ctx, server, clientID)
		if err != nil {
			return nil, err
		}
		log.Info("Connected to coordinator at %s as %s", server, clientID)
		return client, nil
	}

	a.coordinator.Start()
	go func() {
		if err := a.coordinator.Run(ctx); err != nil {
			log.Warn("Coordinator stopped: %v", err)
		}
	}()
	return protocol.NewLocal(a.coordinator, clientID), nil
}
