package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func NewChatCmd() *cobra.Command {
	var threadFlag string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant in the terminal",
		Long: `Start an interactive conversation on one thread.

Type quit, exit or q to leave. Type reset to clear the thread history.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, threadFlag)
		},
	}
	cmd.Flags().StringVar(&threadFlag, "thread", "", "thread ID to continue (default a new one)")
	return cmd
}

func runChat(cmd *cobra.Command, threadFlag string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	threadID := strings.TrimSpace(threadFlag)
	if threadID == "" {
		threadID = uuid.NewString()
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "PolicyPilot (thread %s). Ask about insurance policies, or type quit.\n", threadID)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "\nYou: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(text) {
		case "":
			continue
		case "quit", "exit", "q":
			return nil
		case "reset":
			if err := a.store.Delete(ctx, threadID); err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
			} else {
				fmt.Fprintln(out, "History cleared.")
			}
			continue
		}

		reply, err := a.orchestrator.HandleMessage(ctx, threadID, text)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "\nAssistant [%s]: %s\n", reply.Route, reply.Text)
	}
}
