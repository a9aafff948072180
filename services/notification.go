package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"google.golang.org/api/option"

	"github.com/AndrewCorlett/errolian-club-sub000/config"
	"github.com/AndrewCorlett/errolian-club-sub000/models"
)

// Notifier tells members about ledger changes. Implementations must not
// block the caller on delivery.
type Notifier interface {
	ExpenseAdded(expense *models.Expense, payer models.User, debtors []models.User)
	SharePaid(expense *models.Expense, payer, debtor models.User)
	SettlementRecorded(settlement *models.Settlement, from, to models.User)
	MemberJoined(event *models.Event, adder, member models.User)
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) ExpenseAdded(*models.Expense, models.User, []models.User) {}
func (NopNotifier) SharePaid(*models.Expense, models.User, models.User) {}
func (NopNotifier) SettlementRecorded(*models.Settlement, models.User, models.User) {}
func (NopNotifier) MemberJoined(*models.Event, models.User, models.User) {}

const deliveryTimeout = 10 * time.Second

// NotificationService delivers push notifications through Firebase Cloud
// Messaging and email through SendGrid. Either channel is skipped when it
// is not configured.
type NotificationService struct {
	push    *messaging.Client
	email   *sendgrid.Client
	from    *mail.Email
	appName string
	appURL  string
}

func NewNotificationService(ctx context.Context, cfg *config.Config) *NotificationService {
	ns := &NotificationService{
		from:    mail.NewEmail(cfg.AppName, cfg.SendGridFrom),
		appName: cfg.AppName,
		appURL:  cfg.AppURL,
	}

	if cfg.SendGridAPIKey != "" {
		ns.email = sendgrid.NewSendClient(cfg.SendGridAPIKey)
	} else {
		slog.Warn("SendGrid API key not set, email notifications disabled")
	}

	if cfg.FirebaseCredPath != "" {
		app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(cfg.FirebaseCredPath))
		if err != nil {
			slog.Warn("Firebase init failed, push notifications disabled", "error", err)
			return ns
		}
		client, err := app.Messaging(ctx)
		if err != nil {
			slog.Warn("Firebase messaging unavailable, push notifications disabled", "error", err)
			return ns
		}
		ns.push = client
	} else {
		slog.Warn("Firebase credentials not set, push notifications disabled")
	}
	return ns
}

func (ns *NotificationService) ExpenseAdded(expense *models.Expense, payer models.User, debtors []models.User) {
	for _, user := range debtors {
		p := expense.Participant(user.ID)
		if p == nil || user.ID == expense.PaidBy {
			continue
		}
		share := p.ShareAmount.StringFixed(2)

		ns.sendPush(user.FCMToken,
			fmt.Sprintf("%s added an expense", payer.Name),
			fmt.Sprintf("You owe %s %s for \"%s\"", expense.Currency, share, expense.Title),
			map[string]string{"type": "expense_added", "expense_id": expense.ID.String()},
		)
		ns.sendEmail(user, fmt.Sprintf("%s added \"%s\"", payer.Name, expense.Title), expenseEmail, map[string]any{
			"UserName":  user.Name,
			"PayerName": payer.Name,
			"Title":     expense.Title,
			"Currency":  expense.Currency,
			"Total":     expense.Amount.StringFixed(2),
			"Share":     share,
			"AppName":   ns.appName,
		})
	}
}

func (ns *NotificationService) SharePaid(expense *models.Expense, payer, debtor models.User) {
	ns.sendPush(payer.FCMToken,
		fmt.Sprintf("%s paid their share", debtor.Name),
		fmt.Sprintf("%s paid their share of \"%s\"", debtor.Name, expense.Title),
		map[string]string{"type": "share_paid", "expense_id": expense.ID.String()},
	)
}

func (ns *NotificationService) SettlementRecorded(settlement *models.Settlement, from, to models.User) {
	amount := settlement.Amount.StringFixed(2)
	ns.sendPush(to.FCMToken,
		fmt.Sprintf("%s paid you", from.Name),
		fmt.Sprintf("%s paid you %s %s", from.Name, settlement.Currency, amount),
		map[string]string{"type": "settlement", "settlement_id": settlement.ID.String()},
	)
	ns.sendEmail(to, fmt.Sprintf("%s recorded a payment to you", from.Name), settlementEmail, map[string]any{
		"UserName":  to.Name,
		"PayerName": from.Name,
		"Currency":  settlement.Currency,
		"Amount":    amount,
		"AppName":   ns.appName,
	})
}

func (ns *NotificationService) MemberJoined(event *models.Event, adder, member models.User) {
	title := fmt.Sprintf("You were added to \"%s\"", event.Title)
	ns.sendPush(member.FCMToken, title,
		fmt.Sprintf("%s added you to \"%s\"", adder.Name, event.Title),
		map[string]string{"type": "member_joined", "event_id": event.ID.String()},
	)
	ns.sendEmail(member, title, memberEmail, map[string]any{
		"UserName":   member.Name,
		"AdderName":  adder.Name,
		"EventTitle": event.Title,
		"AppURL":     ns.appURL,
		"AppName":    ns.appName,
	})
}

func (ns *NotificationService) sendPush(token, title, body string, data map[string]string) {
	if ns.push == nil || token == "" {
		return
	}
	msg := &messaging.Message{
		Token:        token,
		Notification: &messaging.Notification{Title: title, Body: body},
		Data:         data,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		defer cancel()
		if _, err := ns.push.Send(ctx, msg); err != nil {
			slog.Warn("Push notification failed", "type", data["type"], "error", err)
			return
		}
		slog.Debug("Push notification sent", "type", data["type"])
	}()
}

func (ns *NotificationService) sendEmail(to models.User, subject string, tmpl *template.Template, data map[string]any) {
	if ns.email == nil || to.Email == "" {
		return
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		slog.Error("Email template failed", "template", tmpl.Name(), "error", err)
		return
	}
	msg := mail.NewSingleEmail(ns.from, subject, mail.NewEmail(to.Name, to.Email), subject, buf.String())
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		defer cancel()
		resp, err := ns.email.SendWithContext(ctx, msg)
		if err != nil {
			slog.Warn("Email send failed", "to", to.Email, "error", err)
			return
		}
		if resp.StatusCode >= 300 {
			slog.Warn("SendGrid rejected email", "to", to.Email, "status", resp.StatusCode)
			return
		}
		slog.Debug("Email sent", "to", to.Email)
	}()
}

const emailLayout = `<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; background-color: #f5f5f5;">
	<div style="background: white; border-radius: 12px; padding: 32px; box-shadow: 0 2px 8px rgba(0,0,0,0.1);">
		{{template "body" .}}
		<p style="color: #999; font-size: 12px; margin-top: 24px;">{{.AppName}}</p>
	</div>
</body>
</html>`

func emailTemplate(name, body string) *template.Template {
	t := template.Must(template.New(name).Parse(emailLayout))
	template.Must(t.New("body").Parse(body))
	return t
}

var (
	expenseEmail = emailTemplate("expense", `
		<h2 style="color: #2f6f4f; margin-top: 0;">New expense</h2>
		<p>Hi <strong>{{.UserName}}</strong>,</p>
		<p><strong>{{.PayerName}}</strong> added a new expense:</p>
		<div style="background: #f8f9fa; border-radius: 8px; padding: 16px; margin: 16px 0;">
			<p style="margin: 4px 0; font-size: 18px;"><strong>{{.Title}}</strong></p>
			<p style="margin: 4px 0; color: #666;">Total: {{.Currency}} {{.Total}}</p>
			<p style="margin: 4px 0; color: #e53e3e; font-size: 18px;"><strong>Your share: {{.Currency}} {{.Share}}</strong></p>
		</div>`)

	settlementEmail = emailTemplate("settlement", `
		<h2 style="color: #2f6f4f; margin-top: 0;">Payment recorded</h2>
		<p>Hi <strong>{{.UserName}}</strong>,</p>
		<p><strong>{{.PayerName}}</strong> recorded a payment of <strong>{{.Currency}} {{.Amount}}</strong> to you.</p>
		<p>Check the app to see your updated balances.</p>`)

	memberEmail = emailTemplate("member", `
		<h2 style="color: #2f6f4f; margin-top: 0;">You're on the list</h2>
		<p>Hi <strong>{{.UserName}}</strong>,</p>
		<p><strong>{{.AdderName}}</strong> added you to <strong>"{{.EventTitle}}"</strong>.</p>
		<div style="margin: 24px 0;">
			<a href="{{.AppURL}}" style="background: #2f6f4f; color: white; padding: 12px 32px; border-radius: 8px; text-decoration: none; font-weight: bold;">Open the app</a>
		</div>`)
)
