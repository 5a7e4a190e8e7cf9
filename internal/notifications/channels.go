package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// ErrNoRecipient is returned when a channel has nowhere to deliver
var ErrNoRecipient = errors.New("no recipient on file")

// SESAPI is the subset of the SES v2 client used for email
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SNSAPI is the subset of the SNS client used for text messages
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// AWSConfig holds the credentials shared by the SES and SNS channels
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// LoadAWSConfig resolves an aws.Config, preferring static keys when set
func LoadAWSConfig(ctx context.Context, cfg AWSConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load aws config: %w", err)
	}
	return awsCfg, nil
}

// EmailChannel delivers rendered emails through SES
type EmailChannel struct {
	client SESAPI
	from   string
}

// NewEmailChannel creates an email channel sending from the given address
func NewEmailChannel(client SESAPI, from string) *EmailChannel {
	return &EmailChannel{client: client, from: from}
}

// Send delivers email to the address and returns the provider message id
func (c *EmailChannel) Send(ctx context.Context, to string, email *RenderedEmail) (string, error) {
	if to == "" {
		return "", ErrNoRecipient
	}

	out, err := c.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(c.from),
		Destination:      &sestypes.Destination{ToAddresses: []string{to}},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(email.Subject), Charset: aws.String("UTF-8")},
				Body: &sestypes.Body{
					Html: &sestypes.Content{Data: aws.String(email.HTML), Charset: aws.String("UTF-8")},
					Text: &sestypes.Content{Data: aws.String(email.Text), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

// SMSChannel delivers text messages through SNS
type SMSChannel struct {
	client   SNSAPI
	senderID string
}

// NewSMSChannel creates an SMS channel. senderID may be empty.
func NewSMSChannel(client SNSAPI, senderID string) *SMSChannel {
	return &SMSChannel{client: client, senderID: senderID}
}

// Send publishes message to the phone number and returns the message id
func (c *SMSChannel) Send(ctx context.Context, phone, message string) (string, error) {
	if phone == "" {
		return "", ErrNoRecipient
	}

	input := &sns.PublishInput{
		PhoneNumber: aws.String(phone),
		Message:     aws.String(message),
	}
	if c.senderID != "" {
		input.MessageAttributes = map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {DataType: aws.String("String"), StringValue: aws.String(c.senderID)},
			"AWS.SNS.SMS.SMSType":  {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
		}
	}

	out, err := c.client.Publish(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to send sms: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}
