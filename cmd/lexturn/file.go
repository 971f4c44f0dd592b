package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"

	"github.com/harunnryd/lexturn/pkg/capture"
	"github.com/harunnryd/lexturn/pkg/interaction"
	"github.com/harunnryd/lexturn/pkg/lex"
	"github.com/harunnryd/lexturn/pkg/logging"
)

// runFile plays one WAV file per turn as the user's speech. The dialog ends
// when the bot is done or the files run out.
func runFile(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("file", flag.ContinueOnError)
	textOut := fs.Bool("text_out", false, "ask for text replies instead of audio")
	outDir := fs.String("out", "replies", "directory for spoken replies")
	if err := fs.Parse(args); err != nil {
		return err
	}
	files := fs.Args()
	if len(files) == 0 {
		return errors.New("file: at least one WAV file is required")
	}

	inputs, err := openWAVs(files)
	if err != nil {
		return err
	}
	defer inputs.close()

	tel, err := newTelemetry(a.cfg.Observability, a.log)
	if err != nil {
		return err
	}
	defer tel.Close()
	tel.serveMetrics(ctx)

	sess, err := newSession(a.cfg, a.log, tel)
	if err != nil {
		return err
	}
	defer sess.Close()

	ended := make(chan error, 1)
	var client *interaction.Client
	show := func(n int, resp *lex.Response) {
		fmt.Printf("turn %d: heard %q, bot says %q\n", n, resp.InputTranscript, describe(resp))
		if path, err := saveAudio(*outDir, client.ConversationID(), n, resp); err != nil {
			a.log.Warn("reply_audio_save_failed", "error", err.Error())
		} else if path != "" {
			fmt.Printf("        audio saved to %s\n", path)
		}
	}
	listener := lex.ListenerFuncs{
		ReadyForFulfillment: func(_ context.Context, resp *lex.Response) {
			show(client.Turns(), resp)
			ended <- nil
		},
		Prompt: func(ctx context.Context, resp *lex.Response, cont *lex.Continuation) error {
			show(client.Turns(), resp)
			if client.Turns() >= len(inputs.sources) {
				fmt.Println("no more input files, ending the conversation")
				ended <- cont.Cancel()
				return nil
			}
			if cont.ResponseMode() == lex.ModeAudio {
				return cont.ContinueWithCurrentMode(ctx)
			}
			return cont.ContinueWithAudioInForTextOut(ctx)
		},
		InteractionError: func(_ context.Context, _ *lex.Response, err error) {
			ended <- err
		},
	}

	icfg := withSampleRate(a.cfg.Interaction, inputs.sources[0].SampleRate())
	client, err = sess.client(icfg, interaction.Options{
		Listener: listener,
		Source:   inputs.source,
		Context:  ctx,
		Logger:   logging.NewComponentLogger(a.log, "interaction"),
		Observer: tel,
	})
	if err != nil {
		return err
	}
	defer client.Wait()
	defer client.Cancel()

	if *textOut {
		err = client.AudioInForTextOut(ctx, nil, nil)
	} else {
		err = client.AudioInForAudioOut(ctx, nil, nil)
	}
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-ended:
		return err
	}
}

type wavInputs struct {
	mu      sync.Mutex
	files   []*os.File
	sources []*capture.WAVSource
}

// openWAVs opens every file up front so a bad file fails before the dialog
// starts. All files must share one sample rate.
func openWAVs(paths []string) (*wavInputs, error) {
	in := &wavInputs{}
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			in.close()
			return nil, err
		}
		in.files = append(in.files, f)
		src, err := capture.NewWAVSource(f)
		if err != nil {
			in.close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		if len(in.sources) > 0 && src.SampleRate() != in.sources[0].SampleRate() {
			in.close()
			return nil, fmt.Errorf("%s: sample rate %d differs from %d", p, src.SampleRate(), in.sources[0].SampleRate())
		}
		in.sources = append(in.sources, src)
	}
	return in, nil
}

func (in *wavInputs) source(_ context.Context, n int) (capture.Source, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if n < 1 || n > len(in.sources) {
		return nil, fmt.Errorf("no input file for turn %d", n)
	}
	return in.sources[n-1], nil
}

func (in *wavInputs) close() {
	for _, f := range in.files {
		_ = f.Close()
	}
}
