package ingest

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/chat-triage/backend/telemetry"
)

// Raw kinds produced by the Twitch adapter. The normalizer maps these onto
// the canonical comment kinds.
const (
	RawKindChat      = "chat"
	RawKindEmojiChat = "emoji_chat"
	RawKindGift      = "gift"
	RawKindFollow    = "follow"
	RawKindEntry     = "entry"
	RawKindStat      = "stat"
)

// TwitchSource turns go-twitch-irc callbacks into a bounded RawEvent stream.
// The IRC client pushes from its own goroutine; when the buffer is full the
// event is dropped and counted rather than blocking the socket reader.
type TwitchSource struct {
	channel string
	client  *twitch.Client
	events  chan RawEvent

	closeOnce sync.Once
	connErr   error
}

// NewTwitchSource builds a source for one channel. The oauth token is the
// bot user's chat token ("oauth:..." form), as required by the IRC endpoint.
func NewTwitchSource(channel, username, oauthToken string, buffer int) *TwitchSource {
	if buffer < 1 {
		buffer = 1
	}
	s := &TwitchSource{
		channel: channel,
		client:  twitch.NewClient(username, oauthToken),
		events:  make(chan RawEvent, buffer),
	}

	s.client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		kind := RawKindChat
		if isEmoteOnly(msg) {
			kind = RawKindEmojiChat
		}
		s.push(RawEvent{
			Kind:        kind,
			Content:     msg.Message,
			UserID:      msg.User.ID,
			DisplayName: msg.User.DisplayName,
			ReceivedAt:  time.Now().UTC(),
			Meta:        map[string]string{"room": msg.Channel},
		})
	})
	s.client.OnUserNoticeMessage(func(msg twitch.UserNoticeMessage) {
		kind := RawKindStat
		switch msg.MsgID {
		case "sub", "resub", "subgift", "anonsubgift", "submysterygift":
			kind = RawKindGift
		case "raid":
			kind = RawKindEntry
		}
		s.push(RawEvent{
			Kind:        kind,
			Content:     msg.Message,
			UserID:      msg.User.ID,
			DisplayName: msg.User.DisplayName,
			ReceivedAt:  time.Now().UTC(),
			Meta:        map[string]string{"notice": msg.MsgID, "system_msg": msg.SystemMsg},
		})
	})
	s.client.OnUserJoinMessage(func(msg twitch.UserJoinMessage) {
		s.push(RawEvent{
			Kind:        RawKindEntry,
			Content:     "joined " + msg.Channel,
			UserID:      msg.User,
			DisplayName: msg.User,
			ReceivedAt:  time.Now().UTC(),
		})
	})
	s.client.OnConnect(func() {
		slog.Info("twitch chat connected", slog.String("channel", channel))
	})
	return s
}

// Start joins the channel and runs the IRC client until ctx is canceled.
// It closes the event stream on exit, which makes Next return io.EOF.
func (s *TwitchSource) Start(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		s.client.Disconnect()
		close(done)
	}()

	s.client.Join(s.channel)
	if err := s.client.Connect(); err != nil && ctx.Err() == nil {
		slog.Error("twitch chat connect error", slog.Any("err", err), slog.String("channel", s.channel))
		s.connErr = err
	}
	<-done
	s.closeOnce.Do(func() { close(s.events) })
}

// Next implements Source.
func (s *TwitchSource) Next(ctx context.Context) (RawEvent, error) {
	select {
	case <-ctx.Done():
		return RawEvent{}, ctx.Err()
	case ev, ok := <-s.events:
		if !ok {
			if s.connErr != nil {
				return RawEvent{}, s.connErr
			}
			return RawEvent{}, io.EOF
		}
		return ev, nil
	}
}

func (s *TwitchSource) push(ev RawEvent) {
	select {
	case s.events <- ev:
	default:
		// Burst exceeded the buffer; dropping here is cheaper than stalling
		// the IRC reader and the pipeline counts it.
		if telemetry.EventsDropped != nil {
			telemetry.EventsDropped.Inc()
		}
	}
}

// isEmoteOnly reports whether the message body is nothing but Twitch emote
// codes (the platform's analogue of an emoji-only barrage).
func isEmoteOnly(msg twitch.PrivateMessage) bool {
	if len(msg.Emotes) == 0 {
		return false
	}
	rest := msg.Message
	for _, e := range msg.Emotes {
		rest = strings.ReplaceAll(rest, e.Name, "")
	}
	return strings.TrimSpace(rest) == ""
}
