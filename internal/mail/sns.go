package mail

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"golang.org/x/text/unicode/norm"
)

// SNS caps topic message subjects at 100 characters and accepts only
// printable ASCII in them.
const maxSNSSubject = 100

const fallbackSNSSubject = "Course allocation notification"

// snsSubject folds accented letters to their base letter, drops anything else
// outside printable ASCII, collapses whitespace and truncates.
func snsSubject(subject string) string {
	var b strings.Builder
	for _, r := range norm.NFD.String(subject) {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			b.WriteByte(' ')
		case r >= 0x20 && r <= 0x7e:
			b.WriteRune(r)
		}
	}
	out := strings.Join(strings.Fields(b.String()), " ")
	if len(out) > maxSNSSubject {
		out = strings.TrimSpace(out[:maxSNSSubject])
	}
	if out == "" {
		return fallbackSNSSubject
	}
	return out
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSTransport publishes to a topic whose email subscriptions filter on the
// "recipient" message attribute.
type SNSTransport struct {
	client   SNSService
	topicARN string
}

func NewSNSTransport(client SNSService, topicARN string) *SNSTransport {
	return &SNSTransport{client: client, topicARN: topicARN}
}

func (t *SNSTransport) Name() string { return "sns" }

func (t *SNSTransport) Send(ctx context.Context, to, subject, htmlBody string) error {
	_, err := t.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(t.topicARN),
		Subject:  aws.String(snsSubject(subject)),
		Message:  aws.String(htmlBody),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"recipient": {
				DataType:    aws.String("String"),
				StringValue: aws.String(to),
			},
		},
	})
	return err
}
