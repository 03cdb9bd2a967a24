package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ent0n29/bravurbot/internal/app"
	"github.com/ent0n29/bravurbot/internal/chat"
)

var (
	askSession  string
	askLanguage string
	askVerbose  bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Run one chat turn and print the streamed reply",
	Long: `Run one chat turn through the same pipeline the API uses and print the reply
as it streams.

Examples:
  bravurbot ask "What services does Bravur offer?"
  bravurbot ask "Wat doet Bravur?" --language nl
  bravurbot ask "Tell me more about that" --session 0b6f...`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askSession, "session", "s", "", "existing session id (a new session is created when empty)")
	askCmd.Flags().StringVarP(&askLanguage, "language", "l", "en", "reply language")
	askCmd.Flags().BoolVarP(&askVerbose, "verbose", "v", false, "print intent and retrieval details")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	res, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer res.Cleanup()

	sessionID := strings.TrimSpace(askSession)
	if sessionID == "" {
		sess, err := res.Sessions.Create(ctx, askLanguage)
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		sessionID = sess.ID
	} else if _, err := res.Sessions.Validate(ctx, sessionID); err != nil {
		return fmt.Errorf("session %s: %w", sessionID, err)
	}

	out := cmd.OutOrStdout()
	turn, err := res.Orchestrator.HandleTurn(ctx, chat.TurnRequest{
		Text:      args[0],
		SessionID: sessionID,
		Language:  askLanguage,
	}, func(chunk string) error {
		_, err := fmt.Fprint(out, chunk)
		return err
	})
	fmt.Fprintln(out)
	if err != nil {
		return err
	}

	if askVerbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "session=%s intent=%s stage=%s source=%s retrieval=%s sources=%v took=%s\n",
			sessionID, turn.Intent, turn.Stage, turn.Source, turn.RetrievalPath, turn.Sources, turn.Duration.Round(time.Millisecond))
	}
	return nil
}
