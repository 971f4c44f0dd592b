package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/harunnryd/lexturn/pkg/interaction"
	"github.com/harunnryd/lexturn/pkg/lex"
	"github.com/harunnryd/lexturn/pkg/logging"
)

// runChat reads user lines from stdin. A line answers the bot's prompt while
// a dialog is open and starts a new dialog otherwise.
func runChat(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	audioOut := fs.Bool("audio_out", false, "ask for spoken replies")
	outDir := fs.String("out", "replies", "directory for spoken replies")
	if err := fs.Parse(args); err != nil {
		return err
	}

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

	lines := readLines(ctx, os.Stdin)
	ended := make(chan error, 1)
	var (
		client  *interaction.Client
		replies int
	)
	show := func(resp *lex.Response) {
		fmt.Printf("bot> %s\n", describe(resp))
		if !*audioOut {
			return
		}
		replies++
		if path, err := saveAudio(*outDir, client.ConversationID(), replies, resp); err != nil {
			a.log.Warn("reply_audio_save_failed", "error", err.Error())
		} else if path != "" {
			fmt.Printf("     (audio saved to %s)\n", path)
		}
	}
	listener := lex.ListenerFuncs{
		ReadyForFulfillment: func(_ context.Context, resp *lex.Response) {
			show(resp)
			fmt.Printf("     [%s %s]\n", resp.IntentName, resp.DialogState)
			ended <- nil
		},
		Prompt: func(ctx context.Context, resp *lex.Response, cont *lex.Continuation) error {
			show(resp)
			line, ok := nextLine(ctx, lines)
			if !ok {
				ended <- cont.Cancel()
				return nil
			}
			if *audioOut {
				return cont.ContinueWithTextInForAudioOut(ctx, line)
			}
			return cont.ContinueWithTextInForTextOut(ctx, line)
		},
		InteractionError: func(_ context.Context, resp *lex.Response, err error) {
			if resp != nil {
				show(resp)
			}
			fmt.Printf("error> %v\n", err)
			ended <- err
		},
	}
	client, err = sess.client(a.cfg.Interaction, interaction.Options{
		Listener: listener,
		Context:  ctx,
		Logger:   logging.NewComponentLogger(a.log, "interaction"),
		Observer: tel,
	})
	if err != nil {
		return err
	}
	defer client.Wait()
	defer client.Cancel()

	for {
		line, ok := nextLine(ctx, lines)
		if !ok {
			return ctx.Err()
		}
		if *audioOut {
			err = client.TextInForAudioOut(ctx, line, nil, nil)
		} else {
			err = client.TextInForTextOut(ctx, line, nil, nil)
		}
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ended:
		}
		if err := tel.Flush(); err != nil {
			a.log.Warn("telemetry_flush_failed", "error", err.Error())
		}
	}
}

// readLines delivers non-empty trimmed lines until r ends or ctx is done.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			select {
			case out <- line:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func nextLine(ctx context.Context, lines <-chan string) (string, bool) {
	fmt.Print("you> ")
	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-lines:
		return line, ok
	}
}
