package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ComputerAces/Genesis-AI-Agent/internal/authtoken"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/models"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/orchestrator"
	"github.com/spf13/cobra"
)

func buildChatCmd() *cobra.Command {
	var oneShotMessage string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session, or send one message and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if oneShotMessage != "" {
				return runOneShot(cmd, a, oneShotMessage)
			}
			return runREPL(cmd, a)
		},
	}
	cmd.Flags().StringVar(&oneShotMessage, "message", "", "send a single message and exit (spec §6 CLI surface)")
	return cmd
}

func runOneShot(cmd *cobra.Command, a *app, message string) error {
	ctx := context.Background()
	sess := &replSession{app: a, useThinking: false}
	if err := sess.ensureChat(ctx); err != nil {
		return err
	}
	return sess.ask(cmd, ctx, message)
}

// replSession holds the state a `/`-prefixed command mutates across the
// interactive loop: which chat is active, whether thinking is shown.
type replSession struct {
	app         *app
	chatID      string
	useThinking bool
}

func runREPL(cmd *cobra.Command, a *app) error {
	fmt.Fprintln(cmd.OutOrStdout(), "Genesis interactive chat. Type /exit to quit, /message is implicit for plain text.")
	sess := &replSession{app: a}
	if err := sess.ensureChat(context.Background()); err != nil {
		return err
	}

	go a.scheduler.Start(context.Background())
	defer a.scheduler.Stop()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(cmd.OutOrStdout(), "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if exit, err := sess.dispatch(cmd, context.Background(), line); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
		} else if exit {
			return nil
		}
	}
	return nil
}

// dispatch handles one REPL line: a `/command` or a plain-text message
// (spec §6's optional CLI surface).
func (s *replSession) dispatch(cmd *cobra.Command, ctx context.Context, line string) (exit bool, err error) {
	if !strings.HasPrefix(line, "/") {
		return false, s.ask(cmd, ctx, line)
	}

	fields := strings.SplitN(line, " ", 2)
	name := fields[0]
	var arg string
	if len(fields) == 2 {
		arg = strings.TrimSpace(fields[1])
	}

	switch name {
	case "/exit":
		return true, nil
	case "/user":
		currentUserID = arg
		fmt.Fprintf(cmd.OutOrStdout(), "switched to user %q\n", currentUserID)
		return false, nil
	case "/pass":
		return false, s.setCredential(cmd, arg)
	case "/chats":
		return false, s.listChats(cmd, ctx)
	case "/chat":
		s.chatID = arg
		fmt.Fprintf(cmd.OutOrStdout(), "active chat set to %q\n", s.chatID)
		return false, nil
	case "/new":
		return false, s.newChat(cmd, ctx, arg)
	case "/clear":
		s.chatID = ""
		fmt.Fprintln(cmd.OutOrStdout(), "cleared active chat")
		return false, nil
	case "/think":
		s.useThinking = arg == "on"
		fmt.Fprintf(cmd.OutOrStdout(), "thinking display: %v\n", s.useThinking)
		return false, nil
	case "/message":
		return false, s.ask(cmd, ctx, arg)
	default:
		fmt.Fprintf(cmd.ErrOrStderr(), "unrecognized command %q\n", name)
		return false, nil
	}
}

// setCredential implements /pass: writes the given API key to the
// current user's secret file for the orchestrator's default provider,
// and mints a local session token the way authtoken.Signer is meant to
// be used (printed, not persisted — the CLI process itself is the session).
func (s *replSession) setCredential(cmd *cobra.Command, apiKey string) error {
	if apiKey == "" {
		return fmt.Errorf("usage: /pass <api-key>")
	}
	path := s.app.layout.UserSecretFile(currentUserID, s.app.cfg.DefaultProvider)
	if err := os.MkdirAll(dirOf(path), 0o700); err != nil {
		return fmt.Errorf("preparing secret directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(apiKey), 0o600); err != nil {
		return fmt.Errorf("writing credential: %w", err)
	}

	if s.app.cfg.SessionTokenSecret != "" {
		signer := authtoken.NewSigner(s.app.cfg.SessionTokenSecret, 24*time.Hour)
		token, err := signer.Issue(currentUserID)
		if err == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "credential stored; session token: %s\n", token)
			return nil
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), "credential stored")
	return nil
}

// ensureChat gives the session a concrete chat id up front so that a
// permission-gated turn's resume (askWithResume) and every later message
// in the session land in the same conversation, rather than each lazily
// creating its own ephemeral chat (spec §4.1 step 1's EnsureChat is
// idempotent per id, but only if the CLI reuses the id it was given).
func (s *replSession) ensureChat(ctx context.Context) error {
	if s.chatID != "" {
		return nil
	}
	chat, err := s.app.store.CreateChat(ctx, currentUserID, "")
	if err != nil {
		return fmt.Errorf("creating default chat: %w", err)
	}
	s.chatID = chat.ID
	return nil
}

func (s *replSession) listChats(cmd *cobra.Command, ctx context.Context) error {
	chats, err := s.app.store.ListChats(ctx, currentUserID)
	if err != nil {
		return err
	}
	for _, c := range chats {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", c.ID, c.Title, c.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}

func (s *replSession) newChat(cmd *cobra.Command, ctx context.Context, title string) error {
	chat, err := s.app.store.CreateChat(ctx, currentUserID, title)
	if err != nil {
		return err
	}
	s.chatID = chat.ID
	fmt.Fprintf(cmd.OutOrStdout(), "created chat %s\n", chat.ID)
	return nil
}

// ask drives one askStream turn to completion, printing streamed content
// and handling a permission pause by prompting interactively and
// resuming (spec §4.1 step 12, §8 scenario S2).
func (s *replSession) ask(cmd *cobra.Command, ctx context.Context, prompt string) error {
	if prompt == "" {
		return nil
	}
	return s.askWithResume(cmd, ctx, prompt, false)
}

func (s *replSession) askWithResume(cmd *cobra.Command, ctx context.Context, prompt string, resume bool) error {
	events := s.app.orch.AskStream(ctx, orchestrator.AskStreamRequest{
		ChatID:       s.chatID,
		UserID:       currentUserID,
		Prompt:       prompt,
		UseThinking:  s.useThinking,
		ResumeAction: resume,
	})

	for ev := range events {
		switch ev.Kind {
		case orchestrator.EventThinking:
			if s.useThinking {
				fmt.Fprint(cmd.OutOrStdout(), ev.Chunk)
			}
		case orchestrator.EventStream:
			fmt.Fprint(cmd.OutOrStdout(), ev.Chunk)
		case orchestrator.EventJSONContent:
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), ev.Message)
		case orchestrator.EventActionOutput:
			fmt.Fprintf(cmd.OutOrStdout(), "\n[%s -> %s]\n", ev.ActionName, ev.Status)
		case orchestrator.EventPermissionNeeded:
			granted := promptForPermission(cmd, s.app, s.chatID, ev.ActionName)
			if granted {
				return s.askWithResume(cmd, ctx, prompt, true)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\npermission for %q denied; turn paused\n", ev.ActionName)
			return nil
		case orchestrator.EventRequestKey:
			fmt.Fprintf(cmd.OutOrStdout(), "\nwaiting for a %s credential (use /pass)...\n", ev.Provider)
		case orchestrator.EventError:
			return ev.Err
		}
	}
	return nil
}

func promptForPermission(cmd *cobra.Command, a *app, chatID, actionName string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "\nallow action %q? [once/session/today/always/no]: ", actionName)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))

	var scope models.PermissionScope
	switch answer {
	case "once", "y", "yes":
		scope = models.ScopeOnce
	case "session":
		scope = models.ScopeSession
	case "today":
		scope = models.ScopeToday
	case "always":
		scope = models.ScopeAlways
	default:
		return false
	}
	if err := a.permissions.Grant(context.Background(), currentUserID, actionName, scope, chatID); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "granting permission:", err)
		return false
	}
	return true
}

func dirOf(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return "."
	}
	return path[:idx]
}
