package aws

import (
	"context"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"habit-tracker/internal/common/errors"
)

type EmailSender struct {
	client SESService
	from   string
}

func NewEmailSender(client SESService, from string) *EmailSender {
	return &EmailSender{client: client, from: from}
}

// Send delivers a plain-text email.
func (s *EmailSender) Send(ctx context.Context, to, subject, body string) error {
	_, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: awssdk.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: awssdk.String(body)},
			},
		},
		Source: awssdk.String(s.from),
	})
	if err != nil {
		return errors.NewNotificationSendFailedError("email", err)
	}
	return nil
}
