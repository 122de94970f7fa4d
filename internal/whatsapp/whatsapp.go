// Package whatsapp implements the messaging gateway over a personal
// WhatsApp account using the Whatsmeow library: QR-code login, text and
// list prompts, document delivery and inbound text/image events.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/gadgetcare/repairbot/internal/messaging"
	"github.com/gadgetcare/repairbot/internal/models"
	"github.com/gadgetcare/repairbot/internal/store"
)

const (
	// DefaultSQLitePath is the default whatsmeow session database path.
	DefaultSQLitePath = "/var/lib/repairbot/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID suffix for regular users.
	JIDSuffix = "s.whatsapp.net"
	// inboundBuffer sizes the inbound message channel.
	inboundBuffer = 64
	// inboundTimeout bounds how long the event handler waits before
	// dropping an inbound message on a full channel.
	inboundTimeout = 5 * time.Second
)

// Opts holds configuration options for the WhatsApp gateway.
type Opts struct {
	DBDSN       string // whatsmeow session database connection string
	QRPath      string // path to write the login QR code
	NumericCode bool   // print a numeric pairing code instead of a QR code
}

// Option defines a configuration option for the WhatsApp gateway.
type Option func(*Opts)

// WithDBDSN sets the whatsmeow session database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) { o.DBDSN = dsn }
}

// WithQRCodeOutput writes the login QR code to the specified path.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) { o.QRPath = path }
}

// WithNumericCode prints the numeric pairing code instead of a QR code.
func WithNumericCode() Option {
	return func(o *Opts) { o.NumericCode = true }
}

// Gateway is the Whatsmeow-backed messaging.Gateway implementation.
type Gateway struct {
	waClient *whatsmeow.Client
	inbound  chan models.Incoming
}

var _ messaging.Gateway = (*Gateway)(nil)

// NewGateway connects to WhatsApp, running the QR/pairing login flow when no
// stored session exists yet.
func NewGateway(opts ...Option) (*Gateway, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}

	dbDSN := cfg.DBDSN
	if dbDSN == "" {
		dbDSN = DefaultSQLitePath
		slog.Debug("No WhatsApp database DSN provided, using default SQLite path", "default_path", dbDSN)
	}
	dbDriver := "sqlite3"
	if store.DetectDSNType(dbDSN) == "postgres" {
		dbDriver = "postgres"
	} else if !strings.Contains(dbDSN, "foreign_keys") {
		slog.Warn("SQLite database for WhatsApp does not appear to have foreign keys enabled. "+
			"Whatsmeow strongly recommends enabling them.",
			"dsn_example", "file:"+dbDSN+"?_foreign_keys=on")
	}

	ctx := context.Background()
	container, err := sqlstore.New(ctx, dbDriver, dbDSN, waLog.Stdout("Database", "INFO", true))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize WhatsApp database store: %w", err)
	}
	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device from WhatsApp store: %w", err)
	}
	waClient := whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "INFO", true))

	if waClient.Store.ID == nil {
		slog.Info("WhatsApp login required; starting QR code flow")
		qrChan, _ := waClient.GetQRChannel(context.Background())
		if err := waClient.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
		}
		writer := io.Writer(os.Stdout)
		if cfg.QRPath != "" {
			f, ferr := os.Create(cfg.QRPath)
			if ferr != nil {
				return nil, fmt.Errorf("failed to create QR file: %w", ferr)
			}
			defer f.Close()
			writer = f
		}
		for evt := range qrChan {
			if evt.Event == "code" {
				if cfg.NumericCode {
					fmt.Fprintln(writer, evt.Code)
				} else {
					qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
				}
			} else {
				slog.Debug("WhatsApp login event", "event", evt.Event)
			}
		}
	} else {
		slog.Debug("WhatsApp already logged in, connecting to server")
		if err := waClient.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect to WhatsApp server: %w", err)
		}
	}
	slog.Info("WhatsApp client connected successfully")

	return &Gateway{
		waClient: waClient,
		inbound:  make(chan models.Incoming, inboundBuffer),
	}, nil
}

// ValidateAndCanonicalizeRecipient reduces a phone number to the bare digit
// form used as a WhatsApp JID user part.
func (g *Gateway) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	r := strings.TrimPrefix(strings.TrimSpace(recipient), "+")
	if r == "" {
		return "", models.ErrEmptyRecipient
	}
	for _, c := range r {
		if c < '0' || c > '9' {
			return "", fmt.Errorf("recipient %q contains non-digit characters", recipient)
		}
	}
	return r, nil
}

// SendText sends a plain conversation message.
func (g *Gateway) SendText(ctx context.Context, to, body string) error {
	if body == "" {
		return models.ErrEmptyMessageBody
	}
	user, err := g.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	jid := types.NewJID(user, JIDSuffix)
	if _, err := g.waClient.SendMessage(ctx, jid, &waE2E.Message{Conversation: &body}); err != nil {
		slog.Error("Failed to send WhatsApp message", "error", err, "to", user)
		return fmt.Errorf("failed to send message to %s: %w", user, err)
	}
	slog.Debug("WhatsApp message sent", "to", user, "body_length", len(body))
	return nil
}

// SendList tries a native WhatsApp list message first. Personal accounts
// frequently reject interactive messages, so any failure quietly degrades
// to the numbered-text rendering.
func (g *Gateway) SendList(ctx context.Context, to, body string, options []string) error {
	user, err := g.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if len(options) == 0 {
		return g.SendText(ctx, to, body)
	}

	rows := make([]*waE2E.ListMessage_Row, len(options))
	for i, opt := range options {
		rows[i] = &waE2E.ListMessage_Row{
			RowID: proto.String(fmt.Sprintf("%d", i+1)),
			Title: proto.String(opt),
		}
	}
	msg := &waE2E.Message{ListMessage: &waE2E.ListMessage{
		Description: proto.String(body),
		ButtonText:  proto.String("Choose"),
		ListType:    waE2E.ListMessage_SINGLE_SELECT.Enum(),
		Sections: []*waE2E.ListMessage_Section{{
			Title: proto.String("Options"),
			Rows:  rows,
		}},
	}}
	jid := types.NewJID(user, JIDSuffix)
	if _, err := g.waClient.SendMessage(ctx, jid, msg); err != nil {
		slog.Debug("WhatsApp list message rejected, falling back to text", "to", user, "error", err)
		return g.SendText(ctx, to, messaging.RenderNumberedList(body, options))
	}
	return nil
}

// SendDocument uploads and delivers a file as a document message.
func (g *Gateway) SendDocument(ctx context.Context, to, filePath, caption string) error {
	user, err := g.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read document %s: %w", filePath, err)
	}
	uploaded, err := g.waClient.Upload(ctx, data, whatsmeow.MediaDocument)
	if err != nil {
		return fmt.Errorf("failed to upload document %s: %w", filePath, err)
	}
	name := filePath
	if idx := strings.LastIndexByte(name, '/'); idx >= 0 {
		name = name[idx+1:]
	}
	msg := &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
		URL:           proto.String(uploaded.URL),
		DirectPath:    proto.String(uploaded.DirectPath),
		MediaKey:      uploaded.MediaKey,
		FileEncSHA256: uploaded.FileEncSHA256,
		FileSHA256:    uploaded.FileSHA256,
		FileLength:    proto.Uint64(uploaded.FileLength),
		Mimetype:      proto.String("application/pdf"),
		FileName:      proto.String(name),
		Caption:       proto.String(caption),
	}}
	jid := types.NewJID(user, JIDSuffix)
	if _, err := g.waClient.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("failed to send document to %s: %w", user, err)
	}
	slog.Info("WhatsApp document sent", "to", user, "file", name)
	return nil
}

// Start registers the event handler feeding the inbound channel. It returns
// immediately; the handler runs until Stop.
func (g *Gateway) Start(ctx context.Context) error {
	g.waClient.AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Message:
			g.handleIncomingMessage(ctx, v)
		default:
			// other event types (receipts, presence) are not interesting here
		}
	})
	slog.Debug("WhatsApp event handler registered")
	return nil
}

// Stop disconnects and closes the inbound channel.
func (g *Gateway) Stop() error {
	g.waClient.Disconnect()
	close(g.inbound)
	return nil
}

// Messages returns the inbound message channel.
func (g *Gateway) Messages() <-chan models.Incoming {
	return g.inbound
}

// handleIncomingMessage extracts text or image content into the inbound
// channel, ignoring all other message kinds.
func (g *Gateway) handleIncomingMessage(ctx context.Context, evt *events.Message) {
	if evt.Message == nil || evt.Info.IsFromMe || evt.Info.IsGroup {
		return
	}
	in := models.Incoming{
		From: evt.Info.Sender.User,
		Time: evt.Info.Timestamp.Unix(),
	}
	switch {
	case evt.Message.Conversation != nil:
		in.Text = evt.Message.GetConversation()
	case evt.Message.ExtendedTextMessage != nil:
		in.Text = evt.Message.ExtendedTextMessage.GetText()
	case evt.Message.ListResponseMessage != nil:
		// A tapped list row comes back with the row ID we assigned (the
		// option number), which the flows resolve as a numeric selection.
		in.Text = evt.Message.ListResponseMessage.GetSingleSelectReply().GetSelectedRowID()
	case evt.Message.ImageMessage != nil:
		img := evt.Message.ImageMessage
		data, err := g.waClient.Download(ctx, img)
		if err != nil {
			slog.Warn("Failed to download inbound WhatsApp image", "from", in.From, "error", err)
			return
		}
		in.Image = data
		in.ImageMIME = img.GetMimetype()
		in.Caption = img.GetCaption()
	default:
		slog.Debug("Ignoring unsupported WhatsApp message kind", "from", in.From)
		return
	}

	select {
	case g.inbound <- in:
		slog.Debug("WhatsApp inbound message queued", "from", in.From, "is_image", in.IsImage())
	case <-time.After(inboundTimeout):
		slog.Warn("Inbound channel blocked, dropping WhatsApp message", "from", in.From)
	}
}
