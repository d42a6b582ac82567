package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

type EmailService struct {
	client    *resend.Client
	fromEmail string
	appURL    string
	appName   string
	isDev     bool
}

func NewEmailService(apiKey, fromEmail, appURL, appName string, isDev bool) *EmailService {
	var client *resend.Client
	if apiKey != "" && !isDev {
		client = resend.NewClient(apiKey)
	}

	return &EmailService{
		client:    client,
		fromEmail: fromEmail,
		appURL:    appURL,
		appName:   appName,
		isDev:     isDev,
	}
}

func (s *EmailService) SendRewardUnlockedEmail(email, name, partnerName string) error {
	rewardURL := fmt.Sprintf("%s/app/reward", s.appURL)
	subject, body := rewardUnlockedEmailTemplate(name, partnerName, rewardURL, s.appName)

	if s.isDev {
		slog.Info("email sent (dev mode)", "type", "reward_unlocked", "to", email, "subject", subject, "url", rewardURL)
		return nil
	}

	if s.client == nil {
		return fmt.Errorf("email service not configured (missing RESEND_API_KEY)")
	}

	params := &resend.SendEmailRequest{
		From:    s.fromEmail,
		To:      []string{email},
		Subject: subject,
		Text:    body,
	}

	_, err := s.client.Emails.SendWithContext(context.Background(), params)
	if err == nil {
		slog.Info("email sent", "type", "reward_unlocked", "to", email)
	}
	return err
}

func rewardUnlockedEmailTemplate(name, partnerName, rewardURL, appName string) (string, string) {
	subject := fmt.Sprintf("You did it! Your %s reward is unlocked", appName)

	greeting := "Hi"
	if name != "" {
		greeting = fmt.Sprintf("Hi %s", name)
	}

	with := "your partner"
	if partnerName != "" {
		with = partnerName
	}

	body := fmt.Sprintf(`%s,

You and %s completed every week of your challenge. Your shared reward is now unlocked.

Claim it here: %s

— The %s Team`, greeting, with, rewardURL, appName)

	return subject, body
}
