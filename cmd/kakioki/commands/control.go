package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"kakioki/internal/services/chat"
)

func blockCmd() *cobra.Command {
	return controlCmd("block", "Block a friend", "blocked", (*chat.Session).Block)
}

func unblockCmd() *cobra.Command {
	return controlCmd("unblock", "Lift your block on a friend", "unblocked", (*chat.Session).Unblock)
}

func removeCmd() *cobra.Command {
	return controlCmd("remove", "Delete the conversation for both sides", "removed", (*chat.Session).Remove)
}

func controlCmd(use, short, done string, fn func(*chat.Session, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <friend>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openChat(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer s.Close()
			if err := fn(s, cmd.Context()); err != nil {
				return err
			}
			fmt.Println(done)
			return nil
		},
	}
}
