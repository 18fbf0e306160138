package email

import (
	"context"
	"strings"
	"testing"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/attesto/internal/common"
	"github.com/ternarybob/attesto/internal/interfaces"
	"github.com/ternarybob/attesto/internal/models"
	badgerstore "github.com/ternarybob/attesto/internal/storage/badger"
)

type fakeUsers struct {
	byEmail map[string]*models.User
}

func (f *fakeUsers) Save(ctx context.Context, user *models.User) error { return nil }
func (f *fakeUsers) Get(ctx context.Context, id string) (*models.User, error) {
	return nil, models.ErrNotFound
}
func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, models.ErrNotFound
}

type fakeKV struct {
	values map[string]string
}

func (f *fakeKV) Get(ctx context.Context, key string) (string, error) {
	if v, ok := f.values[key]; ok {
		return v, nil
	}
	return "", models.ErrNotFound
}
func (f *fakeKV) Set(ctx context.Context, key, value string) error {
	f.values[key] = value
	return nil
}
func (f *fakeKV) Delete(ctx context.Context, key string) error {
	delete(f.values, key)
	return nil
}

func newTestConnector(users *fakeUsers, kv *fakeKV) *Connector {
	cfg := &common.EmailConfig{IntakeUserID: "email-intake"}
	return NewConnector(common.GetLogger(), cfg, "", 3, nil, users, kv)
}

func messageFrom(mailbox, host, messageID string) *imap.Message {
	return &imap.Message{
		Envelope: &imap.Envelope{
			MessageId: messageID,
			From:      []*imap.Address{{MailboxName: mailbox, HostName: host}},
		},
	}
}

func TestIntakeUserID_ResolvesSender(t *testing.T) {
	users := &fakeUsers{byEmail: map[string]*models.User{
		"maria@empresa.com.br": {ID: "user-maria"},
	}}
	c := newTestConnector(users, &fakeKV{values: map[string]string{}})

	got := c.intakeUserID(context.Background(), messageFrom("Maria", "Empresa.com.BR", "<m1>"))
	assert.Equal(t, "user-maria", got)
}

func TestIntakeUserID_FallsBackToConfiguredUser(t *testing.T) {
	c := newTestConnector(&fakeUsers{byEmail: map[string]*models.User{}}, &fakeKV{values: map[string]string{}})

	got := c.intakeUserID(context.Background(), messageFrom("desconhecido", "example.com", "<m2>"))
	assert.Equal(t, "email-intake", got)

	// A message without an envelope cannot be attributed.
	got = c.intakeUserID(context.Background(), &imap.Message{})
	assert.Equal(t, "email-intake", got)
}

func TestProcessedDedupeRoundTrip(t *testing.T) {
	kv := &fakeKV{values: map[string]string{}}
	c := newTestConnector(&fakeUsers{byEmail: map[string]*models.User{}}, kv)
	ctx := context.Background()

	msg := messageFrom("maria", "empresa.com.br", "<unique-id@empresa>")
	require.False(t, c.alreadyProcessed(ctx, msg))

	c.markProcessed(ctx, msg)
	assert.True(t, c.alreadyProcessed(ctx, msg))
	assert.Contains(t, kv.values, processedKeyPrefix+"<unique-id@empresa>")
}

func TestSaveAndEnqueue_AppliesConfiguredAttemptBudget(t *testing.T) {
	logger := common.GetLogger()
	db, err := badgerstore.NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	jobs := badgerstore.NewJobStorage(db, logger)

	cfg := &common.EmailConfig{IntakeUserID: "email-intake"}
	c := NewConnector(logger, cfg, t.TempDir(), 5, jobs, nil, nil)
	ctx := context.Background()

	require.NoError(t, c.saveAndEnqueue(ctx, "user-1", "atestado.pdf", strings.NewReader("%PDF")))

	created, err := jobs.List(ctx, &interfaces.JobListOptions{UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, 5, created[0].MaxAttempts)
}

func TestProcessedDedupe_NoMessageID(t *testing.T) {
	c := newTestConnector(&fakeUsers{byEmail: map[string]*models.User{}}, &fakeKV{values: map[string]string{}})
	ctx := context.Background()

	msg := &imap.Message{Envelope: &imap.Envelope{}}
	assert.False(t, c.alreadyProcessed(ctx, msg))
	c.markProcessed(ctx, msg)
	assert.False(t, c.alreadyProcessed(ctx, msg))
}
