package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/petasbytes/recagent/internal/model"
	"github.com/petasbytes/recagent/internal/provider"
	"github.com/petasbytes/recagent/internal/runner"
	"github.com/petasbytes/recagent/memory"
)

const defaultTranscript = "conversation.json"

var chatUser string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive recommendation chat in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context())
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatUser, "user", "local", "participant id recorded on new threads")
}

func transcriptPath() string {
	if cfg.Transcript != "" {
		return cfg.Transcript
	}
	return defaultTranscript
}

func runChat(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	threadID, err := resumeThread(ctx, a.store)
	if err != nil {
		return err
	}

	settings := a.chain.Settings()
	fmt.Println(titleSt.Render(fmt.Sprintf("Movie recommendations via %s (Ctrl-C to quit)", settings.Provider)))

	// stdin reader goroutine -> lines into channel
	inputCh := make(chan string)
	scanner := bufio.NewScanner(os.Stdin)
	go func() {
		defer close(inputCh)
		for scanner.Scan() {
			select {
			case inputCh <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Print(youSt.Render("You") + ": ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case l, ok := <-inputCh:
			if !ok {
				return scanner.Err()
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		fmt.Print(agentSt.Render("Agent") + ": ")
		res, err := a.chain.Turn(ctx, runner.TurnRequest{
			UserID:      chatUser,
			ThreadID:    threadID,
			AssistantID: cfg.Assistant.ID,
			Content:     line,
			Credentials: cfg.Inference.Credentials[settings.Provider],
			Sink:        printEvent,
		})
		fmt.Println()
		switch {
		case err != nil:
			fmt.Fprintln(os.Stderr, errorSt.Render("error: "+err.Error()))
		case res.Run.Status != model.RunCompleted:
			msg := string(res.Run.Status)
			if res.Run.LastError != "" {
				msg += ": " + res.Run.LastError
			}
			fmt.Fprintln(os.Stderr, warningSt.Render("run "+msg))
		}
		saveTranscript(context.WithoutCancel(ctx), a.store, threadID)
	}
}

// resumeThread restores the transcript into the store or starts a new thread.
func resumeThread(ctx context.Context, store memory.Store) (string, error) {
	tr, err := memory.LoadTranscript(transcriptPath())
	if err != nil {
		fmt.Fprintln(os.Stderr, warningSt.Render("warning: failed to load transcript: "+err.Error()))
	}
	if tr != nil {
		if err := memory.Restore(ctx, store, *tr); err != nil {
			return "", fmt.Errorf("restore transcript: %w", err)
		}
		logger.Info("resumed thread", zap.String("thread_id", tr.Thread.ID), zap.Int("messages", len(tr.Messages)))
		return tr.Thread.ID, nil
	}
	th := model.NewThread([]string{chatUser}, nil)
	if err := store.CreateThread(ctx, th); err != nil {
		return "", err
	}
	return th.ID, nil
}

func saveTranscript(ctx context.Context, store memory.Store, threadID string) {
	tr, err := memory.Snapshot(ctx, store, threadID)
	if err == nil {
		err = memory.SaveTranscript(transcriptPath(), tr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, warningSt.Render("warning: failed to save transcript: "+err.Error()))
	}
}

func printEvent(e runner.Event) {
	switch {
	case e.Type == string(provider.FragmentContent):
		fmt.Print(e.Content)
	case e.Type == runner.EventStatus && progressStatus(e.Status):
		fmt.Print(statusSt.Render("[" + e.Status + "] "))
	}
}

func progressStatus(status string) bool {
	switch status {
	case runner.StatusToolExecutionComplete, runner.StatusCorrectiveRound, runner.StatusRetrying:
		return true
	}
	return false
}
