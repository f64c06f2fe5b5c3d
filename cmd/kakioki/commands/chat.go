package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"kakioki/internal/domain"
	"kakioki/internal/services/chat"
)

// openChat unlocks the key, then opens a session with the friend named by arg.
func openChat(ctx context.Context, arg string) (*chat.Session, error) {
	id, err := parseFriend(arg)
	if err != nil {
		return nil, err
	}
	if _, err := wire.Unlock(ctx, password); err != nil {
		return nil, fmt.Errorf("%s: %w", domain.UserMessage(err), err)
	}
	friend, err := wire.Friend(id)
	if err != nil {
		return nil, err
	}
	s := wire.Session()
	if err := s.Open(ctx, friend); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// send <friend> <message>: encrypt and send a message to <friend>.
func sendCmd() *cobra.Command {
	var media []string
	cmd := &cobra.Command{
		Use:   "send <friend> <message>",
		Short: "Encrypt and send a message to a friend",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openChat(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			var text string
			if len(args) == 2 {
				text = args[1]
			}
			opts := chat.SendOptions{}
			for _, u := range media {
				opts.Media = append(opts.Media, domain.MediaItem{URL: u, Type: mediaType(u)})
			}
			msg, err := s.Send(cmd.Context(), text, opts)
			if err != nil {
				if msg.ClientMessageID != "" {
					fmt.Printf("failed %s (retry with: kakioki retry %s %s)\n", msg.ClientMessageID, args[0], msg.ClientMessageID)
				}
				return err
			}
			fmt.Printf("%s %s\n", msg.State, msg.ClientMessageID)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&media, "media", nil, "uploaded media URL to attach (repeatable)")
	return cmd
}

// retry <friend> <clientMessageId>: resend a message that failed.
func retryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <friend> <clientMessageId>",
		Short: "Resend a failed message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openChat(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer s.Close()
			msg, err := s.Retry(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			fmt.Printf("%s %s (retries %d)\n", msg.State, msg.ClientMessageID, msg.Status.Retries)
			return nil
		},
	}
}

// history <friend>: print the latest page of the conversation.
func historyCmd() *cobra.Command {
	var after string
	var markRead bool
	cmd := &cobra.Command{
		Use:   "history <friend>",
		Short: "Print the latest messages with a friend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openChat(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			if after != "" {
				t, err := time.Parse(time.RFC3339, after)
				if err != nil {
					return fmt.Errorf("invalid --after: %w", err)
				}
				if err := s.LoadAfter(cmd.Context(), t); err != nil {
					return err
				}
			}
			conv := s.Conversation()
			if e := conv.Error(); e != "" {
				return errors.New(e)
			}
			for _, m := range conv.Messages() {
				fmt.Println(formatMessage(m))
			}
			if conv.HasMore() {
				fmt.Println("(more available)")
			}
			if b := conv.BlockState(); b.IsBlocked() {
				fmt.Printf("(blocked: by you=%t, by friend=%t)\n", b.BlockedBySelf, b.BlockedByFriend)
			}
			if markRead {
				if _, err := s.MarkIncomingRead(cmd.Context()); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&after, "after", "", "only messages created after this RFC3339 time")
	cmd.Flags().BoolVar(&markRead, "read", false, "mark incoming messages as read")
	return cmd
}

func formatMessage(m domain.ChatMessage) string {
	text := "[unable to decrypt]"
	if m.Plaintext != nil {
		text = *m.Plaintext
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: %s", m.CreatedAt.Local().Format("2006-01-02 15:04:05"), m.SenderID, text)
	for _, md := range m.Media {
		fmt.Fprintf(&b, " <%s %s>", md.Type, md.Source)
	}
	fmt.Fprintf(&b, " (%s", m.State)
	if m.Error != "" {
		fmt.Fprintf(&b, ": %s", m.Error)
	}
	b.WriteString(")")
	return b.String()
}

func mediaType(u string) domain.MediaType {
	lower := strings.ToLower(u)
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".gif", ".webp"} {
		if strings.HasSuffix(lower, ext) {
			return domain.MediaImage
		}
	}
	for _, ext := range []string{".mp4", ".webm", ".mov"} {
		if strings.HasSuffix(lower, ext) {
			return domain.MediaVideo
		}
	}
	return domain.MediaFile
}
