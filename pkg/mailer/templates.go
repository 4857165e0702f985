package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	texttemplate "text/template"
)

// Template names a transactional email.
type Template string

const (
	TemplateWelcome             Template = "welcome"
	TemplatePasswordReset       Template = "password_reset"
	TemplateOrderStatusCustomer Template = "order_status_customer"
	TemplateOrderStatusAdmin    Template = "order_status_admin"
	TemplateAccountStatus       Template = "account_status"
)

type emailTemplate struct {
	subject string
	text    *texttemplate.Template
	html    *template.Template
}

var templates = map[Template]emailTemplate{
	TemplateWelcome: {
		subject: "Welcome to Bookstore",
		text:    texttemplate.Must(texttemplate.New("welcome").Parse("Hi {{.Name}},\n\nYour Bookstore account is ready. Happy reading!\n")),
		html: template.Must(template.New("welcome").Parse(
			`<h2>Welcome, {{.Name}}!</h2><p>Your Bookstore account is ready. Happy reading!</p>`)),
	},
	TemplatePasswordReset: {
		subject: "Password Reset Request",
		text:    texttemplate.Must(texttemplate.New("reset").Parse("Hello {{.Name}}, reset your password here: {{.Data.resetUrl}}\n\nThis link expires in 10 minutes.\n")),
		html: template.Must(template.New("reset").Parse(
			`<p>Hello {{.Name}},</p>` +
				`<p>You requested a password reset. <a href="{{.Data.resetUrl}}">Reset your password</a>.</p>` +
				`<p style="word-break: break-all;">{{.Data.resetUrl}}</p>` +
				`<p>This link will expire in <strong>10 minutes</strong>.</p>` +
				`<p style="font-size: 14px; color: #999;">If you didn't request this password reset, you can safely ignore this email.</p>`)),
	},
	TemplateOrderStatusCustomer: {
		subject: "Order Status Updated",
		text:    texttemplate.Must(texttemplate.New("order_customer").Parse("Hi {{.Name}},\n\nYour order status has been updated to \"{{.Data.status}}\".\n\nThank you for shopping with us!\n")),
	},
	TemplateOrderStatusAdmin: {
		subject: "Order Update Notification",
		text:    texttemplate.Must(texttemplate.New("order_admin").Parse("Hello {{.Name}},\n\nOrder ID {{.Data.orderId}} status has been updated to \"{{.Data.status}}\" by another admin.\n\nCheck your dashboard for more details.\n")),
	},
	TemplateAccountStatus: {
		subject: "Account Update Notification",
		text: texttemplate.Must(texttemplate.New("account").Parse(
			"Hello {{.Name}},\n\nYour account has been updated by an admin. The changes are:\n" +
				"{{with .Data.role}}- Role: {{.}}\n{{end}}{{with .Data.status}}- Status: {{.}}\n{{end}}" +
				"\nIf you have any concerns, please contact support.\n")),
	},
}

type templateInput struct {
	Name string
	Data map[string]string
}

// Render builds the message for tmpl addressed to a single recipient.
func Render(tmpl Template, to, name string, data map[string]string) (Message, error) {
	def, ok := templates[tmpl]
	if !ok {
		return Message{}, fmt.Errorf("unknown email template %q", tmpl)
	}
	if name == "" {
		name = "there"
	}
	if data == nil {
		data = map[string]string{}
	}
	in := templateInput{Name: name, Data: data}

	msg := Message{To: to, ToName: name, Subject: def.subject}

	var text bytes.Buffer
	if err := def.text.Execute(&text, in); err != nil {
		return Message{}, fmt.Errorf("render %s text: %w", tmpl, err)
	}
	msg.Text = text.String()

	if def.html != nil {
		var html bytes.Buffer
		if err := def.html.Execute(&html, in); err != nil {
			return Message{}, fmt.Errorf("render %s html: %w", tmpl, err)
		}
		msg.HTML = html.String()
	}
	return msg, nil
}
