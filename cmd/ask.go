package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/assistd/internal/assistant"
	"github.com/ziadkadry99/assistd/internal/llm"
	"github.com/ziadkadry99/assistd/internal/stream"
)

var askChat bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the assistant a question from the terminal",
	Long: `Runs one question through the same pipeline as the HTTP endpoints
(guardrail, retrieval, generation and audit) and prints the answer with its
sources. With --chat the question goes through the chat flow, which adds a
greeting and runs the site tools.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.assistantStack(ctx, nil)
		if err != nil {
			return err
		}

		question := strings.Join(args, " ")
		route := assistant.RouteAssistant
		if askChat {
			route = assistant.RouteChat
		}
		if res := st.service.Check(ctx, route, question); !res.Allowed {
			return fmt.Errorf("question rejected: %s", res.Reason)
		}

		req := assistant.Request{
			Route:    route,
			Messages: []assistant.Message{{Role: string(llm.RoleUser), Content: question}},
			Greet:    askChat,
		}.Sanitized()
		rec := &stream.Recorder{}
		text := stream.NewTextWriter(os.Stdout)
		em := stream.EmitterFunc(func(e stream.Event) error {
			rec.Emit(e)
			return text.Emit(e)
		})
		if err := st.service.Serve(ctx, req, em); err != nil {
			return err
		}

		if verbose {
			in := llm.EstimateTokens(llm.SystemPrompt + question)
			out := llm.EstimateTokens(rec.Text())
			fmt.Fprintf(os.Stderr, "tokens: ~%d in, ~%d out, estimated cost $%.5f (%s)\n",
				in, out, llm.EstimateCost(cfg.Generator.Model, in, out), cfg.Generator.Model)
		}
		return nil
	},
}

func init() {
	askCmd.Flags().BoolVar(&askChat, "chat", false, "use the chat flow with greeting and tools")
	rootCmd.AddCommand(askCmd)
}
