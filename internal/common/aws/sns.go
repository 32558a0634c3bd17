package aws

import (
	"context"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"habit-tracker/internal/common/errors"
)

type SMSSender struct {
	client SNSService
}

func NewSMSSender(client SNSService) *SMSSender {
	return &SMSSender{client: client}
}

func (s *SMSSender) Send(ctx context.Context, phone, message string) error {
	_, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: awssdk.String(phone),
		Message:     awssdk.String(message),
	})
	if err != nil {
		return errors.NewNotificationSendFailedError("sms", err)
	}
	return nil
}
