// Package mail delivers the digest over SMTP. Credentials come from
// the environment first (GitHub Actions secrets) and fall back to
// config/email.yaml for local runs.
package mail

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"os"
	"strconv"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

const (
	defaultSMTPServer = "smtp.gmail.com"
	defaultSMTPPort   = 587
)

type Config struct {
	From       string `yaml:"EMAIL_FROM"`
	To         string `yaml:"EMAIL_TO"`
	Password   string `yaml:"EMAIL_PASSWORD"`
	SMTPServer string `yaml:"EMAIL_SMTP_SERVER"`
	SMTPPort   int    `yaml:"EMAIL_SMTP_PORT"`
}

// LoadConfig builds the SMTP config. Environment variables win; the
// YAML file only fills in what the environment left blank. Gmail app
// passwords are often pasted with spaces in groups of four, so all
// whitespace is stripped from the password.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	cfg.From = os.Getenv("EMAIL_FROM")
	cfg.To = os.Getenv("EMAIL_TO")
	cfg.Password = os.Getenv("EMAIL_PASSWORD")
	cfg.SMTPServer = os.Getenv("EMAIL_SMTP_SERVER")
	if raw := os.Getenv("EMAIL_SMTP_PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("EMAIL_SMTP_PORT is not a number: %q", raw)
		}
		cfg.SMTPPort = port
	}

	if cfg.From == "" || cfg.To == "" || cfg.Password == "" {
		if data, err := os.ReadFile(path); err == nil {
			var fileCfg Config
			if err := yaml.Unmarshal(data, &fileCfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
			}
			if cfg.From == "" {
				cfg.From = fileCfg.From
			}
			if cfg.To == "" {
				cfg.To = fileCfg.To
			}
			if cfg.Password == "" {
				cfg.Password = fileCfg.Password
			}
			if cfg.SMTPServer == "" {
				cfg.SMTPServer = fileCfg.SMTPServer
			}
			if cfg.SMTPPort == 0 {
				cfg.SMTPPort = fileCfg.SMTPPort
			}
		}
	}

	if cfg.From == "" || cfg.To == "" || cfg.Password == "" {
		return Config{}, fmt.Errorf("EMAIL_FROM / EMAIL_TO / EMAIL_PASSWORD are not set, check the environment or %s", path)
	}

	if cfg.SMTPServer == "" {
		cfg.SMTPServer = defaultSMTPServer
	}
	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = defaultSMTPPort
	}

	cfg.Password = strings.Join(strings.Fields(cfg.Password), "")

	if !isASCII(cfg.From) {
		return Config{}, fmt.Errorf("EMAIL_FROM contains non-ASCII characters: %q", cfg.From)
	}
	if !isASCII(cfg.Password) {
		return Config{}, fmt.Errorf("EMAIL_PASSWORD contains non-ASCII characters, check for full-width quotes")
	}

	return cfg, nil
}

type Sender struct {
	cfg Config
}

func NewSender(cfg Config) *Sender {
	return &Sender{cfg: cfg}
}

func (s *Sender) Name() string {
	return "email"
}

// Deliver sends the rendered digest. It returns once the SMTP server
// has accepted the message.
func (s *Sender) Deliver(ctx context.Context, subject, body string) error {
	addr := net.JoinHostPort(s.cfg.SMTPServer, strconv.Itoa(s.cfg.SMTPPort))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, s.cfg.SMTPServer)
	if err != nil {
		conn.Close()
		return fmt.Errorf("SMTP handshake failed: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: s.cfg.SMTPServer}); err != nil {
		return fmt.Errorf("STARTTLS failed: %w", err)
	}

	auth := smtp.PlainAuth("", s.cfg.From, s.cfg.Password, s.cfg.SMTPServer)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP auth failed: %w", err)
	}

	if err := client.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("MAIL FROM rejected: %w", err)
	}
	if err := client.Rcpt(s.cfg.To); err != nil {
		return fmt.Errorf("RCPT TO rejected: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA rejected: %w", err)
	}
	if _, err := w.Write(buildMessage(s.cfg.From, s.cfg.To, subject, body)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("message rejected: %w", err)
	}

	return client.Quit()
}

// buildMessage assembles an RFC 5322 message. The subject is Q-encoded
// and the body base64-encoded so Chinese text survives every relay.
func buildMessage(from, to, subject, body string) []byte {
	encoded := base64.StdEncoding.EncodeToString([]byte(body))

	var sb strings.Builder
	sb.WriteString("From: " + from + "\r\n")
	sb.WriteString("To: " + to + "\r\n")
	sb.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	sb.WriteString("Content-Transfer-Encoding: base64\r\n")
	sb.WriteString("\r\n")
	for len(encoded) > 76 {
		sb.WriteString(encoded[:76])
		sb.WriteString("\r\n")
		encoded = encoded[76:]
	}
	sb.WriteString(encoded)
	sb.WriteString("\r\n")
	return []byte(sb.String())
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
