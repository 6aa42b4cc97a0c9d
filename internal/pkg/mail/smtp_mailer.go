package mail

import (
	"fmt"
	"log"
	"net/smtp"

	"github.com/mkarst/CertForge/internal/pkg/env"
)

// SendMail sends an HTML email via SMTP using the environment configuration.
func SendMail(to string, subject string, body string) error {
	host := env.GetEnv("SMTP_HOST", "")
	port := env.GetEnv("SMTP_PORT", "")
	username := env.GetEnv("SMTP_USERNAME", "")
	password := env.GetEnv("SMTP_PASSWORD", "")
	sender := env.GetEnv("SMTP_SENDER", "")

	if sender == "" {
		sender = fmt.Sprintf("no-reply@%s", "localhost")
		log.Printf("SMTP_SENDER not set, using default sender: %s", sender)
	}

	var auth smtp.Auth
	if username != "" && password != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	addr := fmt.Sprintf("%s:%s", host, port)

	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)

	err := smtp.SendMail(addr, auth, sender, []string{to}, msg)
	if err != nil {
		log.Printf("SMTP send error: %v", err)
	} else {
		log.Printf("Email sent to %s via %s", to, addr)
	}
	return err
}

// SendActivationMail delivers the account activation link.
func SendActivationMail(to, name, activationLink string) error {
	subject := "Activate your CertForge account"
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>Welcome to CertForge. Confirm your email address to start practicing:</p>"+
			"<p><a href=\"%s\">Activate account</a></p>"+
			"<p>If you did not sign up, you can ignore this email.</p>",
		name, activationLink,
	)
	return SendMail(to, subject, body)
}

// SendStudyReminderMail delivers the daily practice reminder.
func SendStudyReminderMail(to, name string, remainingQuestions int) error {
	subject := "Your daily CertForge practice is waiting"
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>You have %d questions left to hit today's goal. A few minutes now keeps the streak alive.</p>",
		name, remainingQuestions,
	)
	return SendMail(to, subject, body)
}
