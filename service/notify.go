package service

import (
	"bytes"
	"fmt"
	"net/smtp"
	"os"
	"sync"
	"time"

	"github.com/jordan-wright/email"
	"github.com/yuin/goldmark"
)

// Notifier mails the operator when the model gateway reports quota
// exhaustion. Callers cannot recover from 402 on their own, so someone has
// to be told. At most one mail per throttle window.
type Notifier struct {
	mu       sync.Mutex
	lastSent time.Time
	throttle time.Duration
}

func NewNotifier() *Notifier {
	return &Notifier{throttle: time.Hour}
}

func (n *Notifier) QuotaExhausted(detail string) {
	n.mu.Lock()
	if time.Since(n.lastSent) < n.throttle {
		n.mu.Unlock()
		return
	}
	n.lastSent = time.Now()
	n.mu.Unlock()

	go n.send(detail)
}

func (n *Notifier) send(detail string) {
	host := os.Getenv("SMTP_HOST")
	to := os.Getenv("ALERT_EMAIL_TO")
	if host == "" || to == "" {
		logger.Warnf("[notify] SMTP not configured, quota alert dropped")
		return
	}
	port := os.Getenv("SMTP_PORT")
	if port == "" {
		port = "587"
	}
	from := os.Getenv("ALERT_EMAIL_FROM")
	if from == "" {
		from = os.Getenv("SMTP_USER")
	}

	body := fmt.Sprintf("# GenShai quota alert\n\n"+
		"The model gateway reported **quota exhaustion** at %s.\n\n"+
		"Gateway message:\n\n> %s\n\n"+
		"Chat turns will fail with 402 until the quota is restored.\n",
		time.Now().Format(time.RFC3339), detail)

	var html bytes.Buffer
	if err := goldmark.Convert([]byte(body), &html); err != nil {
		logger.Warnf("[notify] failed to render alert body: %s", err)
		html.Reset()
		html.WriteString(body)
	}

	e := email.NewEmail()
	e.From = from
	e.To = []string{to}
	e.Subject = "GenShai: model gateway quota exhausted"
	e.Text = []byte(body)
	e.HTML = html.Bytes()

	auth := smtp.PlainAuth("", os.Getenv("SMTP_USER"), os.Getenv("SMTP_PASSWORD"), host)
	if err := e.Send(host+":"+port, auth); err != nil {
		logger.Warnf("[notify] failed to send quota alert: %s", err)
		return
	}
	logger.Infof("[notify] quota alert sent to %s", to)
}
