// -----------------------------------------------------------------------
// Email Intake Connector - mailbox attachments become attestation jobs
// -----------------------------------------------------------------------

package email

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/attesto/internal/common"
	"github.com/ternarybob/attesto/internal/interfaces"
	"github.com/ternarybob/attesto/internal/models"
)

var acceptedExtensions = map[string]bool{
	".pdf": true, ".png": true, ".jpg": true, ".jpeg": true, ".webp": true,
}

// processedKeyPrefix namespaces dedupe markers in the KV store.
const processedKeyPrefix = "email:processed:"

// Connector polls an IMAP mailbox and turns document attachments of unseen
// messages into attestation jobs. Messages are marked seen once their
// attachments are enqueued; processed Message-IDs are also recorded in the
// KV store, so a failed seen-flag write cannot double-process on the next
// poll. Jobs are attributed to the registered user matching the sender
// address, falling back to the configured intake user.
type Connector struct {
	logger      arbor.ILogger
	config      *common.EmailConfig
	uploadDir   string
	maxAttempts int
	jobs        interfaces.JobStorage
	users       interfaces.UserStorage
	kv          interfaces.KeyValueStorage

	cancel context.CancelFunc
	done   chan struct{}
}

func NewConnector(logger arbor.ILogger, config *common.EmailConfig, uploadDir string, maxAttempts int, jobs interfaces.JobStorage, users interfaces.UserStorage, kv interfaces.KeyValueStorage) *Connector {
	return &Connector{
		logger:      logger,
		config:      config,
		uploadDir:   uploadDir,
		maxAttempts: maxAttempts,
		jobs:        jobs,
		users:       users,
		kv:          kv,
	}
}

// Start launches the polling loop. No-op when the connector is disabled.
func (c *Connector) Start() {
	if !c.config.Enabled {
		c.logger.Debug().Msg("Email intake disabled")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})

	interval := 5 * time.Minute
	if d, err := time.ParseDuration(c.config.PollInterval); err == nil && d > 0 {
		interval = d
	}

	c.logger.Info().
		Str("host", c.config.Host).
		Str("mailbox", c.config.Mailbox).
		Str("poll_interval", interval.String()).
		Msg("Email intake started")

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if err := c.poll(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warn().Err(err).Msg("Email intake poll failed")
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop halts the polling loop.
func (c *Connector) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

// poll fetches unseen messages and enqueues their document attachments.
func (c *Connector) poll(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)
	conn, err := client.DialTLS(addr, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	defer conn.Logout()

	if err := conn.Login(c.config.Username, c.config.Password); err != nil {
		return fmt.Errorf("IMAP login failed: %w", err)
	}

	mailbox := c.config.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	mbox, err := conn.Select(mailbox, false)
	if err != nil {
		return fmt.Errorf("failed to select %s: %w", mailbox, err)
	}
	if mbox.Messages == 0 {
		return nil
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	seqNums, err := conn.Search(criteria)
	if err != nil {
		return fmt.Errorf("failed to search for unseen messages: %w", err)
	}
	if len(seqNums) == 0 {
		return nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seqNums...)

	section := &imap.BodySectionName{}
	messages := make(chan *imap.Message, len(seqNums))
	fetchDone := make(chan error, 1)
	go func() {
		fetchDone <- conn.Fetch(seqSet, []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}, messages)
	}()

	var processed []uint32
	for msg := range messages {
		if msg == nil {
			continue
		}
		if c.alreadyProcessed(ctx, msg) {
			processed = append(processed, msg.SeqNum)
			continue
		}
		n, err := c.enqueueAttachments(ctx, msg, section)
		if err != nil {
			c.logger.Warn().Err(err).Int64("seq", int64(msg.SeqNum)).Msg("Failed to process message")
			continue
		}
		c.markProcessed(ctx, msg)
		c.logger.Info().
			Int64("seq", int64(msg.SeqNum)).
			Str("subject", msg.Envelope.Subject).
			Int("attachments", n).
			Msg("Message processed")
		processed = append(processed, msg.SeqNum)
	}
	if err := <-fetchDone; err != nil {
		return fmt.Errorf("failed to fetch messages: %w", err)
	}

	if len(processed) > 0 {
		markSet := new(imap.SeqSet)
		markSet.AddNum(processed...)
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := conn.Store(markSet, item, []interface{}{imap.SeenFlag}, nil); err != nil {
			return fmt.Errorf("failed to mark messages as read: %w", err)
		}
	}
	return nil
}

// alreadyProcessed reports whether the message's Message-ID was recorded by
// an earlier poll whose seen-flag write did not stick.
func (c *Connector) alreadyProcessed(ctx context.Context, msg *imap.Message) bool {
	if c.kv == nil || msg.Envelope == nil || msg.Envelope.MessageId == "" {
		return false
	}
	_, err := c.kv.Get(ctx, processedKeyPrefix+msg.Envelope.MessageId)
	return err == nil
}

func (c *Connector) markProcessed(ctx context.Context, msg *imap.Message) {
	if c.kv == nil || msg.Envelope == nil || msg.Envelope.MessageId == "" {
		return
	}
	if err := c.kv.Set(ctx, processedKeyPrefix+msg.Envelope.MessageId, time.Now().Format(time.RFC3339)); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to record processed message id")
	}
}

// intakeUserID resolves the job owner: a registered user matching the sender
// address wins, otherwise the configured intake user.
func (c *Connector) intakeUserID(ctx context.Context, msg *imap.Message) string {
	if c.users != nil && msg.Envelope != nil && len(msg.Envelope.From) > 0 {
		sender := msg.Envelope.From[0]
		addr := strings.ToLower(sender.MailboxName + "@" + sender.HostName)
		if user, err := c.users.GetByEmail(ctx, addr); err == nil {
			return user.ID
		}
	}
	return c.config.IntakeUserID
}

// enqueueAttachments walks one message's MIME parts and creates a job per
// accepted attachment. Returns the number of jobs created.
func (c *Connector) enqueueAttachments(ctx context.Context, msg *imap.Message, section *imap.BodySectionName) (int, error) {
	body := msg.GetBody(section)
	if body == nil {
		return 0, fmt.Errorf("no body section")
	}

	mr, err := mail.CreateReader(body)
	if err != nil {
		return 0, fmt.Errorf("failed to create mail reader: %w", err)
	}

	userID := c.intakeUserID(ctx, msg)
	created := 0
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return created, fmt.Errorf("failed to read next part: %w", err)
		}

		header, ok := part.Header.(*mail.AttachmentHeader)
		if !ok {
			continue
		}
		filename, err := header.Filename()
		if err != nil || filename == "" {
			continue
		}
		if !acceptedExtensions[strings.ToLower(filepath.Ext(filename))] {
			c.logger.Debug().Str("filename", filename).Msg("Attachment type not accepted, skipped")
			continue
		}

		if err := c.saveAndEnqueue(ctx, userID, filename, part.Body); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

func (c *Connector) saveAndEnqueue(ctx context.Context, userID, filename string, body io.Reader) error {
	if err := os.MkdirAll(c.uploadDir, 0o755); err != nil {
		return fmt.Errorf("failed to create upload dir: %w", err)
	}

	jobID := uuid.New().String()
	dest := filepath.Join(c.uploadDir, jobID+strings.ToLower(filepath.Ext(filename)))

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create upload file: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(dest)
		return fmt.Errorf("failed to write attachment: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close upload file: %w", err)
	}

	job := &models.Job{
		ID:               jobID,
		UserID:           userID,
		Type:             models.JobTypeAttestation,
		FilePath:         dest,
		OriginalFilename: filename,
		MaxAttempts:      c.maxAttempts,
	}
	if err := c.jobs.Create(ctx, job); err != nil {
		os.Remove(dest)
		return fmt.Errorf("failed to enqueue attachment job: %w", err)
	}

	c.logger.Info().
		Str("job_id", job.ID).
		Str("filename", filename).
		Msg("Attachment enqueued")
	return nil
}
