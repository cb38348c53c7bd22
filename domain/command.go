package domain

import (
	"courier/errors"
	"fmt"
	"time"
)

// SendCommand asks the router to deliver Content from Sender to Recipient.
type SendCommand struct {
	Sender    Identity
	Recipient Identity
	Content   string `validate:"required"`
	Metadata  map[string]any
}

func (c SendCommand) Validate() error {
	if err := c.Sender.Validate(); err != nil {
		return fmt.Errorf("sender: %w", err)
	}
	if err := c.Recipient.Validate(); err != nil {
		return fmt.Errorf("recipient: %w", err)
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err)
	}
	return nil
}

// MessageQuery selects one identity's inbound or outbound log.
// From is compared at UTC day granularity and is inclusive.
type MessageQuery struct {
	Owner      Identity
	Direction  Direction
	From       *time.Time
	UnreadOnly bool
}

func (q MessageQuery) Validate() error {
	if err := q.Owner.Validate(); err != nil {
		return err
	}
	if !q.Direction.Valid() {
		return fmt.Errorf("%w: direction is missing", errors.ErrInvalidArgument)
	}
	return nil
}

// FromDay returns the first partition included by the query, or "" when unbounded.
func (q MessageQuery) FromDay() string {
	if q.From == nil {
		return ""
	}
	return q.From.UTC().Format(DayLayout)
}

// SearchCommand looks up an identity's messages by content.
type SearchCommand struct {
	Owner Identity
	Text  string `validate:"required"`
	Limit int    `validate:"min=1,max=500"`
}

func (c SearchCommand) Validate() error {
	if err := c.Owner.Validate(); err != nil {
		return err
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err)
	}
	return nil
}
