package usecase

import (
	"net/mail"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/xavierca1/conduit/internal/entity"
)

const (
	maxNameLength    = 200
	maxContentLength = 4000
	maxContextLength = 1000
)

var nonDigits = regexp.MustCompile(`\D`)

func ValidateCreateLeadInput(input CreateLeadInput) error {
	var errs ValidationErrors

	name := strings.TrimSpace(input.Name)
	if name == "" {
		errs = append(errs, ValidationError{"name", "is required"})
	} else if len(name) > maxNameLength {
		errs = append(errs, ValidationError{"name", "must not exceed 200 characters"})
	}

	email := strings.TrimSpace(input.Email)
	phone := strings.TrimSpace(input.Phone)
	if email == "" && phone == "" {
		errs = append(errs, ValidationError{"email", "either email or phone is required"})
	}
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			errs = append(errs, ValidationError{"email", "is invalid"})
		}
	}
	if phone != "" && !isValidPhoneNumber(phone) {
		errs = append(errs, ValidationError{"phone", "must be a valid phone number"})
	}

	return errs.orNil()
}

func ValidateSendMessageInput(input SendMessageInput) error {
	var errs ValidationErrors
	errs = appendLeadID(errs, input.LeadID)
	errs = appendChannel(errs, input.Channel)
	errs = appendContent(errs, input.Content)
	return errs.orNil()
}

func ValidateReplyInput(input ReplyInput) error {
	var errs ValidationErrors
	errs = appendLeadID(errs, input.LeadID)
	errs = appendChannel(errs, input.Channel)
	errs = appendContent(errs, input.Content)
	return errs.orNil()
}

func ValidateAIReplyInput(input AIReplyInput) error {
	var errs ValidationErrors
	errs = appendLeadID(errs, input.LeadID)
	errs = appendChannel(errs, input.Channel)
	if len(input.Context) > maxContextLength {
		errs = append(errs, ValidationError{"context", "must not exceed 1000 characters"})
	}
	return errs.orNil()
}

// ValidateLeadID checks a path or payload lead id.
func ValidateLeadID(id string) error {
	return appendLeadID(nil, id).orNil()
}

func appendLeadID(errs ValidationErrors, id string) ValidationErrors {
	if strings.TrimSpace(id) == "" {
		return append(errs, ValidationError{"lead_id", "is required"})
	}
	if _, err := uuid.Parse(id); err != nil {
		return append(errs, ValidationError{"lead_id", "must be a valid UUID"})
	}
	return errs
}

func appendChannel(errs ValidationErrors, ch entity.Channel) ValidationErrors {
	if ch == "" {
		return append(errs, ValidationError{"channel", "is required"})
	}
	if !ch.Valid() {
		return append(errs, ValidationError{"channel", "must be one of email, chat, voice, professional_network, ads"})
	}
	return errs
}

func appendContent(errs ValidationErrors, content string) ValidationErrors {
	if strings.TrimSpace(content) == "" {
		return append(errs, ValidationError{"content", "is required"})
	}
	if len(content) > maxContentLength {
		return append(errs, ValidationError{"content", "must not exceed 4000 characters"})
	}
	return errs
}

// isValidPhoneNumber accepts national or E.164 numbers.
func isValidPhoneNumber(phone string) bool {
	cleaned := nonDigits.ReplaceAllString(phone, "")
	return len(cleaned) >= 10 && len(cleaned) <= 15
}
