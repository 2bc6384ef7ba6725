package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hitwire/packages/core/config"
	"github.com/abdul-hamid-achik/hitwire/packages/output"
	"github.com/abdul-hamid-achik/hitwire/packages/recording"
	"github.com/abdul-hamid-achik/hitwire/packages/ws"
)

var wsCmd = &cobra.Command{
	Use:   "ws <url>",
	Short: "Open a WebSocket session, send messages and wait for replies",
	Long: `Connect to a WebSocket endpoint, send messages, optionally wait for a
matching reply and print the message history.

Examples:
  hitwire ws wss://echo.example.com --send hello --wait-text hello
  hitwire ws wss://api.example.com/feed --send '{"op":"subscribe"}' --wait-json type=ack
  hitwire ws wss://api.example.com/feed --listen -v
  hitwire ws wss://api.example.com/feed --send ping --record runs.db`,
	Args: cobra.ExactArgs(1),
	RunE: wsCommand,
}

var (
	wsSendFlags       []string
	wsBinaryFlag      bool
	wsHeaderFlags     []string
	wsWaitJSONFlag    string
	wsWaitTextFlag    string
	wsTimeoutFlag     time.Duration
	wsListenFlag      bool
	wsNoReconnectFlag bool
	wsRecordFlag      string
	wsWatchConfigFlag bool
)

func init() {
	wsCmd.Flags().StringArrayVarP(&wsSendFlags, "send", "s", nil, "Message to send after connecting (repeatable)")
	wsCmd.Flags().BoolVar(&wsBinaryFlag, "binary", false, "Send messages as binary frames")
	wsCmd.Flags().StringArrayVarP(&wsHeaderFlags, "header", "H", nil, "Handshake header as \"Name: value\" (repeatable)")
	wsCmd.Flags().StringVar(&wsWaitJSONFlag, "wait-json", "", "Wait for a JSON message where path=value (e.g., type=ack, data.id=7)")
	wsCmd.Flags().StringVar(&wsWaitTextFlag, "wait-text", "", "Wait for a message containing this text")
	wsCmd.Flags().DurationVarP(&wsTimeoutFlag, "timeout", "t", 10*time.Second, "How long to wait for a matching message")
	wsCmd.Flags().BoolVar(&wsListenFlag, "listen", false, "Keep the session open until interrupted")
	wsCmd.Flags().BoolVar(&wsNoReconnectFlag, "no-reconnect", false, "Disable automatic reconnection")
	wsCmd.Flags().StringVar(&wsRecordFlag, "record", getEnvString("HITWIRE_RECORD", ""), "Record the message history to a SQLite database (env: HITWIRE_RECORD)")
	wsCmd.Flags().BoolVar(&wsWatchConfigFlag, "watch-config", false, "Log config file changes while listening")
}

func wsCommand(cmd *cobra.Command, args []string) error {
	target := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sessCfg := cfg.SessionConfig(target)
	for _, h := range wsHeaderFlags {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return exitWith(ExitUsageError, fmt.Errorf("invalid header %q, expected \"Name: value\"", h))
		}
		sessCfg.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	if wsNoReconnectFlag {
		sessCfg.AutoReconnect = false
	}

	match, err := buildMatcher()
	if err != nil {
		return exitWith(ExitUsageError, err)
	}

	var opts []ws.Option
	if logger := newLogger(cfg); logger != nil {
		opts = append(opts, ws.WithLogger(logger))
	}
	session, err := ws.NewSession(sessCfg, opts...)
	if err != nil {
		return exitWith(ExitUsageError, err)
	}

	reporter := output.NewReporter(
		output.WithWriter(cmd.OutOrStdout()),
		output.WithNoColor(cfg.GetNoColor()),
		output.WithVerbose(cfg.GetVerbose()),
	)

	var printer sync.WaitGroup
	printer.Add(1)
	go func() {
		defer printer.Done()
		for e := range session.Events() {
			reporter.Event(e)
		}
	}()
	finish := func() {
		session.Destroy()
		printer.Wait()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := session.Connect(ctx); err != nil {
		finish()
		return exitWith(ExitNetworkError, err)
	}

	kind := ws.KindText
	if wsBinaryFlag {
		kind = ws.KindBinary
	}
	for _, payload := range wsSendFlags {
		if _, err := session.Send(ctx, kind, []byte(payload)); err != nil {
			finish()
			return exitWith(ExitNetworkError, fmt.Errorf("send: %w", err))
		}
	}

	var waitErr error
	if match != nil {
		waitErr = awaitReply(ctx, session, match, wsTimeoutFlag)
	}

	if wsListenFlag && waitErr == nil {
		if wsWatchConfigFlag {
			go watchConfig(ctx, reporter)
		}
		<-ctx.Done()
	}

	info := session.Info()
	history := session.MessageHistory()
	finish()

	fmt.Fprintln(cmd.OutOrStdout())
	reporter.Messages(history)
	reporter.Session(info)

	if wsRecordFlag != "" {
		runID, err := recordSession(context.Background(), wsRecordFlag, target, history)
		if err != nil {
			reporter.Error("recording failed: %v", err)
		} else {
			reporter.Info("Recorded as run %s", runID)
		}
	}

	if waitErr != nil {
		reporter.Error("%v", waitErr)
		return exitWith(ExitNetworkError, nil)
	}
	return nil
}

// buildMatcher returns nil when no wait was requested
func buildMatcher() (ws.Matcher, error) {
	var matchers []ws.Matcher

	if wsWaitJSONFlag != "" {
		path, raw, ok := strings.Cut(wsWaitJSONFlag, "=")
		if !ok || path == "" {
			return nil, fmt.Errorf("invalid --wait-json %q, expected path=value", wsWaitJSONFlag)
		}
		matchers = append(matchers, ws.MatchJSON(path, parseWaitValue(raw)))
	}
	if wsWaitTextFlag != "" {
		matchers = append(matchers, ws.MatchText(wsWaitTextFlag))
	}

	if len(matchers) == 0 {
		return nil, nil
	}
	return ws.MatchAll(matchers...), nil
}

// parseWaitValue reads numbers, booleans and null as JSON, anything else
// as a string
func parseWaitValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

// awaitReply waits for a received message satisfying match. Replies that
// arrived before the wait was registered are found in the history.
func awaitReply(ctx context.Context, session *ws.Session, match ws.Matcher, timeout time.Duration) error {
	received := func(m ws.Message) bool {
		return m.Direction == ws.Received && match(m)
	}
	if len(session.FindMessages(received)) > 0 {
		return nil
	}

	_, err := session.WaitForMessage(ctx, received, timeout)
	if err != nil && errors.Is(err, ws.ErrWaitTimeout) && len(session.FindMessages(received)) > 0 {
		return nil
	}
	return err
}

func watchConfig(ctx context.Context, reporter *output.Reporter) {
	path := configFlag
	if path == "" {
		found, err := config.FindConfigFile(".")
		if err != nil {
			return
		}
		path = found
	}

	err := config.Watch(ctx, path, func(cfg *config.Config, err error) {
		if err != nil {
			reporter.Error("config reload: %v", err)
			return
		}
		reporter.Info("Config %s changed; new settings apply to the next session", path)
	})
	if err != nil {
		reporter.Error("watching config: %v", err)
	}
}

func recordSession(ctx context.Context, dsn, target string, history []ws.Message) (string, error) {
	store, err := recording.Open(dsn)
	if err != nil {
		return "", err
	}
	defer store.Close()

	run, err := store.CreateRun(ctx, recording.KindSession, target)
	if err != nil {
		return "", err
	}
	if err := store.SaveMessages(ctx, run.ID, history); err != nil {
		return "", err
	}
	if err := store.FinishRun(ctx, run.ID); err != nil {
		return "", err
	}
	return run.ID, nil
}
