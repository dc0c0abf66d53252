package mailer

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"strings"
	"text/template"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"
)

// Message 纯文本邮件
type Message struct {
	To       string
	Subject  string
	TextBody string
}

// Sender 发信接口
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ==================== 物流通知模板 ====================

// TrackingEmail 物流通知模板数据
type TrackingEmail struct {
	CustomerName   string
	OrderID        string
	ParcelIndex    int
	ParcelCount    int
	Carrier        string
	Service        string
	TrackingNumber string
	TrackingURL    string
}

var trackingTemplate = template.Must(template.New("tracking").Parse(`Hi {{if .CustomerName}}{{.CustomerName}}{{else}}there{{end}},

Good news: {{if gt .ParcelCount 1}}parcel {{.ParcelIndex}} of {{.ParcelCount}} from {{end}}your order {{.OrderID}} is on its way.

Carrier: {{.Carrier}}{{if .Service}} ({{.Service}}){{end}}
Tracking number: {{.TrackingNumber}}
{{- if .TrackingURL}}
Track your parcel: {{.TrackingURL}}
{{- end}}

Thank you for your order!
`))

// RenderTrackingEmail 生成物流通知邮件
func RenderTrackingEmail(to string, data TrackingEmail) (Message, error) {
	var buf bytes.Buffer
	if err := trackingTemplate.Execute(&buf, data); err != nil {
		return Message{}, err
	}
	return Message{
		To:       to,
		Subject:  fmt.Sprintf("Your order %s has shipped", data.OrderID),
		TextBody: buf.String(),
	}, nil
}

// ==================== SMTPSender ====================

// SMTPSender 通过 SMTP 发信，Username 为空时不认证
type SMTPSender struct {
	addr     string
	from     string
	username string
	password string
}

// NewSMTPSender 创建 SMTP 发信器
func NewSMTPSender(addr, from, username, password string) *SMTPSender {
	return &SMTPSender{addr: addr, from: from, username: username, password: password}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth sasl.Client
	if s.username != "" {
		auth = sasl.NewPlainClient("", s.username, s.password)
	}

	body := buildMessage(s.from, msg, time.Now())
	if err := gosmtp.SendMail(s.addr, auth, s.from, []string{msg.To}, strings.NewReader(body)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

// buildMessage 组装 RFC 5322 报文，换行统一为 CRLF
func buildMessage(from string, msg Message, now time.Time) string {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject) + "\r\n")
	b.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	body := strings.ReplaceAll(msg.TextBody, "\r\n", "\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return b.String()
}

// ==================== LogSender ====================

// LogSender 只记录日志，用于本地开发或关闭发信时
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender 创建日志发信器
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.Info("邮件未实际发送（SMTP 已关闭）",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.TextBody))
	return nil
}

var (
	_ Sender = (*SMTPSender)(nil)
	_ Sender = (*LogSender)(nil)
)
