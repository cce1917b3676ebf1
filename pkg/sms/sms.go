package sms

import (
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Client sends SMS through Twilio.
type Client struct {
	rest       *twilio.RestClient
	fromNumber string
}

func New(accountSID, authToken, fromNumber string) (*Client, error) {
	if accountSID == "" || authToken == "" || fromNumber == "" {
		return nil, fmt.Errorf("missing SMS configuration: AccountSID, AuthToken, or FromNumber is empty")
	}
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &Client{rest: rest, fromNumber: fromNumber}, nil
}

// Send delivers body to an E.164 number and returns the message SID.
func (c *Client) Send(toNumber, body string) (string, error) {
	if err := ValidateNumber(toNumber); err != nil {
		return "", err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(toNumber)
	params.SetFrom(c.fromNumber)
	params.SetBody(body)

	resp, err := c.rest.Api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("failed to send SMS to %s: %w", toNumber, err)
	}
	if resp.Sid == nil {
		return "", nil
	}
	return *resp.Sid, nil
}

func ValidateNumber(n string) error {
	if !strings.HasPrefix(n, "+") || len(n) < 8 {
		return fmt.Errorf("invalid phone number: %s", n)
	}
	return nil
}
