package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sudharshan06-dev/devops-orchestra/internal/dispatch"
)

var (
	askChatID string
	askWS     bool
)

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Send a message and stream the assistant's response",
	Long: `Send one conversational turn to the orchestra server and stream the
response as it is produced.

Without --chat a fresh conversation is created and its id printed, so a
follow-up turn can continue it.

Examples:
  orchestra ask "what is an ALB?"
  orchestra ask "please check https://github.com/acme/widgets"
  orchestra ask --chat user7-chat3 "generate infra with an ALB and RDS"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askChatID, "chat", "c", "", "continue an existing conversation")
	askCmd.Flags().BoolVar(&askWS, "ws", false, "use the websocket transport")
}

func runAsk(cmd *cobra.Command, args []string) error {
	message := strings.Join(args, " ")
	ctx := context.Background()

	printFragment := func(f dispatch.Fragment) error {
		switch f.Kind {
		case dispatch.FragmentConversation:
			if verbose || askChatID == "" {
				fmt.Fprintf(os.Stderr, "[chat %s]\n", f.Content)
			}
		case dispatch.FragmentError:
			fmt.Fprintf(os.Stderr, "\n%s\n", f.Content)
		default:
			fmt.Print(f.Content)
		}
		return nil
	}

	var resolved string
	var err error
	if askWS {
		send, closeFn, dialErr := apiClient.AskWS(ctx)
		if dialErr != nil {
			return dialErr
		}
		defer closeFn()
		resolved, err = send(askChatID, message, printFragment)
	} else {
		resolved, err = apiClient.Ask(ctx, askChatID, message, printFragment)
	}
	if err != nil {
		return err
	}

	fmt.Println()
	if verbose {
		fmt.Fprintf(os.Stderr, "conversation: %s\n", resolved)
	}
	return nil
}
