package cmd

import (
	"context"
	"fmt"
	"mcpchat/chat"
	"mcpchat/config"
	"mcpchat/health"
	"mcpchat/model"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
)

var (
	chatProvider string
	chatModel    string
	chatSystem   string
	chatNoStream bool
)

var chatCmd = &cobra.Command{
	Use:   "chat <prompt>",
	Short: "Send one prompt to a provider and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatProvider, "provider", "p", "", "provider id (default from config)")
	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "", "model name (default from provider config)")
	chatCmd.Flags().StringVar(&chatSystem, "system", "", "system prompt")
	chatCmd.Flags().BoolVar(&chatNoStream, "no-stream", false, "wait for the full reply instead of streaming")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	providerID := chatProvider
	if providerID == "" {
		providerID = cfg.DefaultProvider
	}
	if providerID == "" {
		return fmt.Errorf("no provider given and no default_provider configured")
	}

	reg := newRegistry()
	svc := chat.NewService(reg, health.NewMonitor(reg), chat.WithTimeout(cfg.ChatTimeout()))
	defer svc.Close()
	if err, failed := svc.ApplyConfig(cfg)[providerID]; failed {
		return err
	}

	var messages []model.Message
	if chatSystem != "" {
		messages = append(messages, model.Message{Role: model.RoleSystem, Content: chatSystem})
	}
	messages = append(messages, model.Message{Role: model.RoleUser, Content: strings.Join(args, " ")})
	req := model.Request{
		ProviderID: providerID,
		Model:      chatModel,
		Messages:   messages,
		Stream:     !chatNoStream,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if chatNoStream {
		resp, err := svc.HandleChat(ctx, req)
		if err != nil {
			return err
		}
		printf("%s\n", resp.Content)
		printToolCalls(resp.ToolCalls)
		return nil
	}

	stream, err := svc.StreamChat(ctx, req)
	if err != nil {
		return err
	}
	defer stream.Close()
	for stream.Next() {
		printf("%s", stream.Current().Content)
	}
	printf("\n")
	if err := stream.Err(); err != nil {
		return err
	}
	printToolCalls(stream.Response().ToolCalls)
	return nil
}

// printToolCalls lists requested tool calls on stderr. They are not run.
func printToolCalls(calls []model.ToolCall) {
	for _, tc := range calls {
		fmt.Fprintf(ioErr, "[tool call] %s %v\n", tc.Name, tc.Arguments)
	}
	if len(calls) > 0 && config.Debug {
		config.DebugLog.Printf("[Chat] Model requested %d tool calls", len(calls))
	}
}
