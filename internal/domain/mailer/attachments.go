// Package mailer contributes certificate archives as attachments to the
// platform's outgoing order emails. Transport is owned by the platform;
// this package only decides what to attach and hands the message off.
package mailer

import (
	"context"
	"os"
	"path/filepath"

	"certflow/internal/core/id"
	"certflow/internal/domain/metastore"
	"certflow/internal/domain/orders"
	"certflow/pkg/logger"
)

// MessageType identifies an outgoing platform email.
type MessageType string

const (
	TypeNewOrder       MessageType = "new_order"
	TypeCompletedOrder MessageType = "customer_completed_order"
	TypeInvoice        MessageType = "customer_invoice"
)

// attachable lists the message types that carry the certificate archive.
var attachable = map[MessageType]struct{}{
	TypeNewOrder:       {},
	TypeCompletedOrder: {},
	TypeInvoice:        {},
}

// Message is one outgoing email hand-off.
type Message struct {
	Type        MessageType
	OrderID     id.ID
	Recipient   string
	Attachments []string
}

// Dispatcher delivers messages. Implementations belong to the host
// platform's email pipeline.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

// AttachmentProvider resolves the archive attachment for an order email.
type AttachmentProvider struct {
	meta    metastore.Store
	destDir string
}

// NewAttachmentProvider creates a provider reading archive references from
// user metadata and files from destDir.
func NewAttachmentProvider(meta metastore.Store, destDir string) *AttachmentProvider {
	return &AttachmentProvider{meta: meta, destDir: destDir}
}

// Attachments returns the archive paths to attach to the given message,
// empty when the message type carries no archive or none exists yet.
func (p *AttachmentProvider) Attachments(ctx context.Context, msgType MessageType, order *orders.Order) ([]string, error) {
	if _, ok := attachable[msgType]; !ok {
		return nil, nil
	}

	zipName, err := p.meta.Get(ctx, metastore.KindUser, order.CustomerID.String(), metastore.KeyCertificateZip)
	if err != nil {
		return nil, err
	}
	if zipName == "" {
		return nil, nil
	}

	path := filepath.Join(p.destDir, zipName)
	if _, err := os.Stat(path); err != nil {
		logger.Warn(ctx, "archive reference points at missing file",
			"order_id", order.ID, "path", path)
		return nil, nil
	}
	return []string{path}, nil
}

// LogDispatcher records the hand-off; delivery happens in the platform's
// own email pipeline.
type LogDispatcher struct{}

var _ Dispatcher = LogDispatcher{}

// Send implements Dispatcher.
func (LogDispatcher) Send(ctx context.Context, msg Message) error {
	logger.Info(ctx, "email hand-off",
		"type", msg.Type,
		"order_id", msg.OrderID,
		"recipient", msg.Recipient,
		"attachments", len(msg.Attachments),
	)
	return nil
}
