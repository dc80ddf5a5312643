package email

import (
	"strings"
	"sync"
	"testing"
	"time"

	"kalpla-auth/internal/provider/local"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	to, subject, body string
}

type fakeMailer struct {
	mu    sync.Mutex
	sent  []sent
	delay time.Duration
}

func (m *fakeMailer) Send(to, subject, bodyHTML string) error {
	time.Sleep(m.delay)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sent{to, subject, bodyHTML})
	return nil
}

func (m *fakeMailer) all() []sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sent(nil), m.sent...)
}

func TestCodeSink_EmailsAndChains(t *testing.T) {
	mailer := &fakeMailer{}
	var chained []string

	codes := NewCodeMailer(mailer, func(purpose local.CodePurpose, destination, code string) {
		chained = append(chained, destination)
	}, nil)
	defer codes.Close()

	var sink local.CodeSink = codes.Deliver

	sink(local.CodeSignUp, "student@kalpla.com", "123456")
	sink(local.CodeSignIn, "+15555550123", "654321")

	assert.Equal(t, []string{"student@kalpla.com", "+15555550123"}, chained)

	require.Eventually(t, func() bool { return len(mailer.all()) == 1 }, time.Second, 5*time.Millisecond)
	msg := mailer.all()[0]
	assert.Equal(t, "student@kalpla.com", msg.to)
	assert.Equal(t, "Confirm your Kalpla account", msg.subject)
	assert.Contains(t, msg.body, "123456")
}

func TestCodeMailer_CloseWaitsForSends(t *testing.T) {
	mailer := &fakeMailer{delay: 50 * time.Millisecond}
	codes := NewCodeMailer(mailer, nil, nil)

	codes.Deliver(local.CodeSignUp, "a@kalpla.com", "111111")
	codes.Deliver(local.CodePasswordReset, "b@kalpla.com", "222222")
	codes.Close()

	assert.Len(t, mailer.all(), 2)

	// sends after Close are not lost either
	codes.Deliver(local.CodeSignIn, "c@kalpla.com", "333333")
	assert.Len(t, mailer.all(), 3)
}

func TestBuildMessage(t *testing.T) {
	msg := string(buildMessage("Kalpla", "no-reply@kalpla.com", "a@kalpla.com", "Hello", "<p>body</p>"))

	assert.True(t, strings.HasPrefix(msg, "From: Kalpla <no-reply@kalpla.com>\r\nTo: a@kalpla.com\r\nSubject: Hello\r\n"))
	assert.Contains(t, msg, "Content-Type: text/html")
	assert.Contains(t, msg, "<p>body</p>")
}

func TestCodeEmail_UnknownPurpose(t *testing.T) {
	subject, body := codeEmail(local.CodePurpose("other"), "000111")
	assert.Equal(t, "Your Kalpla verification code", subject)
	assert.Contains(t, body, "000111")
}
