package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/ent0n29/bravurbot/internal/protocol"
)

type benchOptions struct {
	baseURL     string
	language    string
	turns       int
	interTurn   time.Duration
	turnTimeout time.Duration
	textsRaw    string
	texts       []string
	verbose     bool
}

type wsEnvelope struct {
	Type      string `json:"type"`
	TurnID    string `json:"turn_id,omitempty"`
	Code      string `json:"code,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Reason    string `json:"reason,omitempty"`
	TextDelta string `json:"text_delta,omitempty"`
}

var defaultUtterances = []string{
	"What services does Bravur offer?",
	"What are the main trends in cloud security?",
	"Tell me more about that",
	"What was my last question?",
}

var bench benchOptions

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Replay chat turns over WebSocket against a running server and report latency",
	Long: `Open a session on a running server, replay utterances over /v1/chat/ws and
report time to first chunk and time to turn end.

Examples:
  bravurbot bench --turns 20
  bravurbot bench --base-url https://chat.example.com --texts "Wat doet Bravur?|Vertel meer" --language nl`,
	Args: cobra.NoArgs,
	RunE: runBench,
}

func init() {
	f := benchCmd.Flags()
	f.StringVar(&bench.baseURL, "base-url", "http://127.0.0.1:8080", "server base URL")
	f.StringVar(&bench.language, "language", "en", "session language")
	f.IntVar(&bench.turns, "turns", 10, "number of turns to replay")
	f.DurationVar(&bench.interTurn, "inter-turn", 200*time.Millisecond, "pause between turns")
	f.DurationVar(&bench.turnTimeout, "turn-timeout", 30*time.Second, "timeout waiting for assistant_turn_end per turn")
	f.StringVar(&bench.textsRaw, "texts", "", "utterances separated by '|' (optional)")
	f.BoolVarP(&bench.verbose, "verbose", "v", false, "print every turn")
}

func (o *benchOptions) normalize() error {
	o.baseURL = strings.TrimRight(strings.TrimSpace(o.baseURL), "/")
	if o.baseURL == "" {
		return fmt.Errorf("base-url is required")
	}
	if o.turns <= 0 {
		return fmt.Errorf("turns must be > 0")
	}
	if o.interTurn < 0 {
		o.interTurn = 0
	}
	if o.turnTimeout < time.Second {
		o.turnTimeout = time.Second
	}

	o.texts = nil
	if strings.TrimSpace(o.textsRaw) == "" {
		o.texts = append([]string(nil), defaultUtterances...)
		return nil
	}
	for _, part := range strings.Split(o.textsRaw, "|") {
		if t := strings.TrimSpace(part); t != "" {
			o.texts = append(o.texts, t)
		}
	}
	if len(o.texts) == 0 {
		return fmt.Errorf("texts produced no non-empty utterances")
	}
	return nil
}

func runBench(cmd *cobra.Command, _ []string) error {
	if err := bench.normalize(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 8*time.Minute)
	defer cancel()
	out := cmd.OutOrStdout()

	httpClient := &http.Client{Timeout: 45 * time.Second}
	sessionID, err := createBenchSession(ctx, httpClient, bench.baseURL, bench.language)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer func() {
		_ = endBenchSession(context.Background(), httpClient, bench.baseURL, sessionID)
	}()

	wsURL, err := wsURLForSession(bench.baseURL, sessionID)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	events := make(chan wsEnvelope, 256)
	readErrCh := make(chan error, 1)
	go readLoop(conn, events, readErrCh)

	var firsts, totals []time.Duration
	for i := 0; i < bench.turns; i++ {
		text := bench.texts[i%len(bench.texts)]
		start := time.Now()
		if err := conn.WriteJSON(protocol.UserMessage{
			Type:      protocol.TypeUserMessage,
			SessionID: sessionID,
			Text:      text,
			Language:  bench.language,
		}); err != nil {
			return fmt.Errorf("turn %d send: %w", i+1, err)
		}
		first, total, err := awaitTurn(events, readErrCh, start, bench.turnTimeout)
		if err != nil {
			return fmt.Errorf("turn %d: %w", i+1, err)
		}
		firsts = append(firsts, first)
		totals = append(totals, total)
		if bench.verbose {
			fmt.Fprintf(out, "turn %d/%d first_chunk=%s total=%s text=%q\n",
				i+1, bench.turns, first.Round(time.Millisecond), total.Round(time.Millisecond), text)
		}
		if bench.interTurn > 0 && i < bench.turns-1 {
			time.Sleep(bench.interTurn)
		}
	}

	fmt.Fprintf(out, "turns=%d first_chunk_p50=%s first_chunk_p95=%s turn_p50=%s turn_p95=%s\n",
		len(totals),
		percentile(firsts, 0.50).Round(time.Millisecond),
		percentile(firsts, 0.95).Round(time.Millisecond),
		percentile(totals, 0.50).Round(time.Millisecond),
		percentile(totals, 0.95).Round(time.Millisecond),
	)
	return nil
}

func createBenchSession(ctx context.Context, client *http.Client, baseURL, language string) (string, error) {
	payload, err := json.Marshal(map[string]string{"language": language})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/session", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.SessionID) == "" {
		return "", fmt.Errorf("response missing session_id")
	}
	return out.SessionID, nil
}

func endBenchSession(ctx context.Context, client *http.Client, baseURL, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/session/"+url.PathEscape(sessionID)+"/end", nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	res.Body.Close()
	return nil
}

func wsURLForSession(baseURL, sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/chat/ws"
	q := u.Query()
	q.Set("session_id", sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func readLoop(conn *websocket.Conn, events chan<- wsEnvelope, readErrCh chan<- error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		events <- env
	}
}

var errTurnTimeout = errors.New("timed out waiting for assistant_turn_end")

// awaitTurn consumes events until the turn ends and returns the time to the
// first text delta and to the turn end, both measured from start.
func awaitTurn(events <-chan wsEnvelope, readErrCh <-chan error, start time.Time, timeout time.Duration) (time.Duration, time.Duration, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var first time.Duration
	for {
		select {
		case ev := <-events:
			switch ev.Type {
			case string(protocol.TypeAssistantTextDelta):
				if first == 0 {
					first = time.Since(start)
				}
			case string(protocol.TypeErrorEvent):
				if ev.Code == "turn_failed" {
					continue
				}
				return 0, 0, fmt.Errorf("error_event code=%s detail=%s", ev.Code, ev.Detail)
			case string(protocol.TypeAssistantTurnEnd):
				total := time.Since(start)
				if first == 0 {
					first = total
				}
				if ev.Reason == "error" {
					return first, total, fmt.Errorf("turn ended with error")
				}
				return first, total, nil
			}
		case err := <-readErrCh:
			return 0, 0, fmt.Errorf("ws read: %w", err)
		case <-timer.C:
			return 0, 0, errTurnTimeout
		}
	}
}

// percentile uses the nearest-rank method.
func percentile(samples []time.Duration, p float64) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
