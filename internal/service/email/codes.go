package email

import (
	"fmt"
	"strings"
	"sync"

	"kalpla-auth/internal/provider/local"

	"go.uber.org/zap"
)

// Mailer is satisfied by *Sender
type Mailer interface {
	Send(to, subject, bodyHTML string) error
}

var codeSubjects = map[local.CodePurpose]string{
	local.CodeSignUp:        "Confirm your Kalpla account",
	local.CodeSignIn:        "Your Kalpla sign-in code",
	local.CodePasswordReset: "Reset your Kalpla password",
}

var codeIntros = map[local.CodePurpose]string{
	local.CodeSignUp:        "Welcome to Kalpla! Enter this code to confirm your account:",
	local.CodeSignIn:        "Enter this code to finish signing in:",
	local.CodePasswordReset: "Enter this code to choose a new password:",
}

// CodeMailer emails verification codes issued by the local provider. Phone
// destinations are left to next, which may be nil. Sends run in the
// background so a slow SMTP server never blocks a sign-in; Close waits for
// the ones in flight.
type CodeMailer struct {
	mailer Mailer
	next   local.CodeSink
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewCodeMailer(mailer Mailer, next local.CodeSink, logger *zap.Logger) *CodeMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CodeMailer{mailer: mailer, next: next, logger: logger}
}

// Deliver has the local.CodeSink signature
func (m *CodeMailer) Deliver(purpose local.CodePurpose, destination, code string) {
	if m.next != nil {
		m.next(purpose, destination, code)
	}
	if !strings.Contains(destination, "@") {
		return
	}

	subject, body := codeEmail(purpose, code)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		// after Close nothing waits, so send inline
		m.send(purpose, destination, subject, body)
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		m.send(purpose, destination, subject, body)
	}()
}

// Close blocks until every background send has finished
func (m *CodeMailer) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.wg.Wait()
}

func (m *CodeMailer) send(purpose local.CodePurpose, destination, subject, body string) {
	if err := m.mailer.Send(destination, subject, body); err != nil {
		m.logger.Error("failed to email verification code",
			zap.String("purpose", string(purpose)), zap.Error(err))
		return
	}
	m.logger.Info("verification code emailed", zap.String("purpose", string(purpose)))
}

func codeEmail(purpose local.CodePurpose, code string) (string, string) {
	subject, ok := codeSubjects[purpose]
	if !ok {
		subject = "Your Kalpla verification code"
	}
	intro, ok := codeIntros[purpose]
	if !ok {
		intro = "Your verification code is:"
	}

	body := fmt.Sprintf(`<p>%s</p><p class="code">%s</p><p>The code expires in 15 minutes.</p>`, intro, code)
	return subject, body
}
