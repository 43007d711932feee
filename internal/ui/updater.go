// Package ui renders routed stream updates as text for the CLI.
package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/alejoacosta74/kraken-ws/internal/common"
	"github.com/alejoacosta74/kraken-ws/internal/events"
	"github.com/alejoacosta74/kraken-ws/pkg/kraken"
	"github.com/sirupsen/logrus"
)

// UIUpdater prints every stream update published on the event bus
type UIUpdater struct {
	eventBus events.Bus
	out      io.Writer
	mu       sync.Mutex // serialises writes to out
	logger   *logrus.Entry
	done     chan struct{}
}

// NewUIUpdater creates an updater writing to out
func NewUIUpdater(eventBus events.Bus, out io.Writer) *UIUpdater {
	return &UIUpdater{
		eventBus: eventBus,
		out:      out,
		logger:   logrus.WithField("component", "ui_updater"),
		done:     make(chan struct{}),
	}
}

// Start begins listening for stream updates until ctx is done
func (u *UIUpdater) Start(ctx context.Context) {
	updates := u.eventBus.Subscribe(common.TypeStreamUpdate)

	go func() {
		defer close(u.done)
		defer u.eventBus.Unsubscribe(common.TypeStreamUpdate, updates)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-updates:
				if !ok {
					return
				}
				if s, isStream := ev.(common.StreamEvent); isStream {
					u.render(s)
				}
			}
		}
	}()
}

// Done is closed once the updater stopped
func (u *UIUpdater) Done() <-chan struct{} {
	return u.done
}

func (u *UIUpdater) render(s common.StreamEvent) {
	text, err := Format(s)
	if err != nil {
		u.logger.WithError(err).WithField("channel", s.Channel).Debug("Cannot render update")
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	fmt.Fprintln(u.out, text)
}

// Format renders one stream update. Public feeds are shown with the pair
// spelled as subscribed.
func Format(s common.StreamEvent) (string, error) {
	if kraken.IsPrivate(s.Topic) {
		p, err := kraken.ParsePrivateUpdate(s.Payload)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s seq=%d %s", p.Topic, p.Sequence, string(p.Payload)), nil
	}

	upd, err := kraken.ParseUpdate(s.Payload)
	if err != nil {
		return "", err
	}
	switch s.Topic {
	case kraken.ChannelTicker:
		t, err := kraken.DecodeTicker(upd)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%-10s ticker  bid %s  ask %s  last %s", s.Pair, t.Bid.Price, t.Ask.Price, t.Close.Price), nil
	case kraken.ChannelSpread:
		sp, err := kraken.DecodeSpread(upd)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%-10s spread  bid %s  ask %s", s.Pair, sp.Bid, sp.Ask), nil
	case kraken.ChannelTrade:
		trades, err := kraken.DecodeTrades(upd)
		if err != nil {
			return "", err
		}
		lines := make([]string, 0, len(trades))
		for _, tr := range trades {
			side := "buy"
			if tr.Side == "s" {
				side = "sell"
			}
			lines = append(lines, fmt.Sprintf("%-10s trade   %-4s %s @ %s", s.Pair, side, tr.Volume, tr.Price))
		}
		return strings.Join(lines, "\n"), nil
	case kraken.ChannelOHLC:
		o, err := kraken.DecodeOHLC(upd)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%-10s %-7s o %s h %s l %s c %s v %s", s.Pair, s.Channel, o.Open, o.High, o.Low, o.Close, o.Volume), nil
	case kraken.ChannelBook:
		b, err := kraken.DecodeBook(upd)
		if err != nil {
			return "", err
		}
		return b.PrettyPrint(s.Pair), nil
	default:
		return fmt.Sprintf("%-10s %s %s", s.Pair, s.Channel, string(s.Payload)), nil
	}
}
