package mail

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Mailer sends price alert emails over implicit-TLS SMTP. When any of
// user, password or destination is missing it is inert: every send is a
// logged no-op reporting not-sent.
type Mailer struct {
	host      string
	port      int
	user      string
	password  string
	to        string
	threshold float64
	log       *logrus.Logger
}

func New(host string, port int, user, password, to string, threshold float64, log *logrus.Logger) *Mailer {
	return &Mailer{host: host, port: port, user: user, password: password, to: to, threshold: threshold, log: log}
}

func (m *Mailer) Configured() bool {
	return m.user != "" && m.password != "" && m.to != ""
}

// SendPriceAlert reports whether the message was actually handed to the
// SMTP server.
func (m *Mailer) SendPriceAlert(ticker string, changePercent, price decimal.Decimal) bool {
	if !m.Configured() {
		m.log.Warn("mail settings not configured, skipping alert email")
		return false
	}

	subject := fmt.Sprintf("[%s] %s%% price movement alert", ticker, signedPercent(changePercent))
	body := m.alertBody(ticker, changePercent, price)

	if err := m.send(subject, body); err != nil {
		m.log.Errorf("failed to send alert email for %s: %v", ticker, err)
		return false
	}
	m.log.Infof("alert email sent: %s (%s%%)", ticker, signedPercent(changePercent))
	return true
}

// TestConnection dials and authenticates without sending anything.
func (m *Mailer) TestConnection() error {
	if !m.Configured() {
		return fmt.Errorf("mail settings not configured")
	}
	c, err := m.dial()
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Quit()
}

func (m *Mailer) send(subject, htmlBody string) error {
	c, err := m.dial()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Mail(m.user); err != nil {
		return err
	}
	if err := c.Rcpt(m.to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		m.user, m.to, subject, htmlBody)
	if _, err := w.Write([]byte(msg)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func (m *Mailer) dial() (*smtp.Client, error) {
	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: m.host})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c, err := smtp.NewClient(conn, m.host)
	if err != nil {
		conn.Close()
		return nil, err
	}
	auth := smtp.PlainAuth("", m.user, m.password, m.host)
	if err := c.Auth(auth); err != nil {
		c.Close()
		return nil, fmt.Errorf("smtp auth: %w", err)
	}
	return c, nil
}

func (m *Mailer) alertBody(ticker string, changePercent, price decimal.Decimal) string {
	color := "#3B82F6"
	if changePercent.IsNegative() {
		color = "#EF4444"
	}
	return fmt.Sprintf(`<html>
<body style="font-family: Arial, sans-serif; padding: 20px;">
  <h2 style="color: %s;">Price movement alert</h2>
  <hr style="border: 1px solid #e5e7eb;">
  <div style="margin: 20px 0;">
    <p><strong>Ticker:</strong> %s</p>
    <p><strong>Change:</strong>
      <span style="font-size: 24px; font-weight: bold; color: %s;">%s%%</span>
    </p>
    <p><strong>Current price:</strong> $%s</p>
    <p><strong>Time:</strong> %s</p>
  </div>
  <hr style="border: 1px solid #e5e7eb;">
  <p style="color: #6b7280; font-size: 12px; margin-top: 20px;">
    This alert is sent automatically when a price moves %.1f%% or more.
  </p>
</body>
</html>`, color, ticker, color, signedPercent(changePercent), price.StringFixed(2),
		time.Now().Format("2006-01-02 15:04:05"), m.threshold)
}

func signedPercent(d decimal.Decimal) string {
	s := d.StringFixed(2)
	if !d.IsNegative() {
		s = "+" + s
	}
	return s
}
