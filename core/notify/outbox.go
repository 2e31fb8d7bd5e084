package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/piggyclaim/piggyclaim/core/apqueue"
	"github.com/piggyclaim/piggyclaim/model"
	"github.com/piggyclaim/piggyclaim/pkg/logger"
)

// Outbox queues a message per finished wallet. Delivery happens in the queue
// worker so a slow or down telegram api never holds a route.
type Outbox struct {
	queue       *apqueue.Queue
	chatID      string
	explorerURL string
	logger      logger.Logger
}

func NewOutbox(queue *apqueue.Queue, chatID, explorerURL string, log logger.Logger) *Outbox {
	return &Outbox{
		queue:       queue,
		chatID:      chatID,
		explorerURL: strings.TrimRight(explorerURL, "/"),
		logger:      logger.EnsureLogger(log),
	}
}

// WalletDoneText is the message sent when a wallet ran out of tasks.
func WalletDoneText(address common.Address, explorerURL string) string {
	var b strings.Builder
	b.WriteString("🐷 <b>Piggy claimer</b>\n")
	fmt.Fprintf(&b, "Wallet <code>%s</code> finished its tasks", html.EscapeString(address.Hex()))
	if explorerURL != "" {
		fmt.Fprintf(&b, "\n%s/address/%s", explorerURL, address.Hex())
	}
	return b.String()
}

func (o *Outbox) Notify(ctx context.Context, wallet *model.Wallet) error {
	payload, err := json.Marshal(Message{
		ChatID: o.chatID,
		Text:   WalletDoneText(wallet.Address, o.explorerURL),
	})
	if err != nil {
		return err
	}

	job, err := o.queue.Enqueue(JobTypeTelegram, wallet.Address.Hex(), payload)
	if err != nil {
		return fmt.Errorf("cannot queue notification: %w", err)
	}

	o.logger.Debug("notification queued", "address", wallet.Address.Hex(), "job_id", job.ID, "external_id", job.ExternalID)
	return nil
}
